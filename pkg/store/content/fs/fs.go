// Package fs implements filesystem-backed content storage for DittoOTS.
//
// Each ContentID maps to one regular file directly under the base
// directory. Files are sparse where the underlying filesystem allows it.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// FSContentStore stores content as files under basePath.
//
// Thread Safety:
// Operations on the same ContentID are serialized through a per-ID mutex;
// operations on different IDs run in parallel.
type FSContentStore struct {
	basePath string

	// fileLocks maps ContentID to *sync.Mutex
	fileLocks sync.Map
}

// NewFSContentStore creates a filesystem content store, creating basePath
// if it does not exist.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Directory holding the content files
//
// Returns:
//   - *FSContentStore: Initialized store
//   - error: If the directory cannot be created or context is cancelled
func NewFSContentStore(ctx context.Context, basePath string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSContentStore{basePath: basePath}, nil
}

func (r *FSContentStore) getFilePath(id content.ContentID) (string, error) {
	name := string(id)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("content %q: %w", name, content.ErrInvalidContentID)
	}
	return filepath.Join(r.basePath, name), nil
}

func (r *FSContentStore) lock(id content.ContentID) func() {
	v, _ := r.fileLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ============================================================================
// Reading
// ============================================================================

// ReadAt fills p from the file at offset, zero-filling past EOF.
func (r *FSContentStore) ReadAt(ctx context.Context, id content.ContentID, p []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	path, err := r.getFilePath(id)
	if err != nil {
		return err
	}

	unlock := r.lock(id)
	defer unlock()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer func() { _ = file.Close() }()

	n, err := file.ReadAt(p, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read content: %w", err)
	}
	// Short read at EOF: the rest of the window is zeros.
	clear(p[n:])
	return nil
}

// GetContentSize returns the file size.
func (r *FSContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path, err := r.getFilePath(id)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat content: %w", err)
	}
	return uint64(info.Size()), nil
}

// ContentExists reports whether the content file exists.
func (r *FSContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := r.getFilePath(id)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat content: %w", err)
	}
	return true, nil
}

// ============================================================================
// Writing
// ============================================================================

// WriteAt writes data at offset, creating the file if needed.
func (r *FSContentStore) WriteAt(ctx context.Context, id content.ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	path, err := r.getFilePath(id)
	if err != nil {
		return err
	}

	unlock := r.lock(id)
	defer unlock()

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file for writing: %w", err)
	}

	if _, err := file.WriteAt(data, offset); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close content: %w", err)
	}
	return nil
}

// Truncate resizes the content file.
func (r *FSContentStore) Truncate(ctx context.Context, id content.ContentID, newSize uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := r.getFilePath(id)
	if err != nil {
		return err
	}

	unlock := r.lock(id)
	defer unlock()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("truncate failed for %s: %w", id, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to stat content for truncate: %w", err)
	}

	if err := os.Truncate(path, int64(newSize)); err != nil {
		return fmt.Errorf("failed to truncate content: %w", err)
	}
	return nil
}

// Delete removes the content file. A missing file is not an error.
func (r *FSContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := r.getFilePath(id)
	if err != nil {
		return err
	}

	unlock := r.lock(id)
	defer unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// WriteContent replaces the file atomically through a temporary file and
// rename.
func (r *FSContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := r.getFilePath(id)
	if err != nil {
		return err
	}

	unlock := r.lock(id)
	defer unlock()

	tmp, err := os.CreateTemp(r.basePath, ".tmp-"+string(id)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to install content: %w", err)
	}
	return nil
}

var _ content.Store = (*FSContentStore)(nil)
