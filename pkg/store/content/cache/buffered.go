package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// DefaultMaxBufferSize is the window size at which a buffered object is
// flushed even though its write has not finished.
const DefaultMaxBufferSize = 8 * 1024 * 1024

// Config configures a BufferedStore.
type Config struct {
	// MaxBufferSize flushes a window once it holds this many bytes.
	// 0 means DefaultMaxBufferSize.
	MaxBufferSize int64

	// Metrics observes the buffer (nil = none).
	Metrics Metrics
}

// BufferedStore is a content.Store that holds writes back in a WriteCache
// until Flush.
//
// Every operation other than WriteAt flushes the affected object first,
// so readers never see stale bytes. Delete drops pending writes instead of
// flushing them.
type BufferedStore struct {
	backend content.Store
	cache   WriteCache
	metrics Metrics
	maxSize int64

	// mu serializes a flush against writes to the same store.
	mu sync.Mutex
}

// NewBufferedStore wraps backend with an in-memory write buffer.
func NewBufferedStore(backend content.Store, cfg Config) *BufferedStore {
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = DefaultMaxBufferSize
	}
	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &BufferedStore{
		backend: backend,
		cache:   NewMemoryWriteCache(m),
		metrics: m,
		maxSize: cfg.MaxBufferSize,
	}
}

// Backend returns the wrapped store.
func (b *BufferedStore) Backend() content.Store {
	return b.backend
}

// Pending returns the number of objects with buffered writes.
func (b *BufferedStore) Pending() int {
	return len(b.cache.List())
}

// ============================================================================
// Buffered writes
// ============================================================================

// WriteAt buffers data. A write that does not continue the current window
// flushes the window first.
func (b *BufferedStore) WriteAt(ctx context.Context, id content.ContentID, data []byte, offset int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(data) == 0 {
		if err := b.flushLocked(ctx, id); err != nil {
			return err
		}
		return b.backend.WriteAt(ctx, id, data, offset)
	}

	err := b.cache.WriteAt(id, data, offset)
	if errors.Is(err, ErrNotContiguous) {
		if err := b.flushLocked(ctx, id); err != nil {
			return err
		}
		err = b.cache.WriteAt(id, data, offset)
	}
	if err != nil {
		return err
	}

	if b.cache.Size(id) >= b.maxSize {
		return b.flushLocked(ctx, id)
	}
	return nil
}

// Flush writes the pending window of id to the backend.
func (b *BufferedStore) Flush(ctx context.Context, id content.ContentID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx, id)
}

// FlushAll writes every pending window. It keeps going after a failure
// and returns the first error.
func (b *BufferedStore) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var first error
	for _, id := range b.cache.List() {
		if err := b.flushLocked(ctx, id); err != nil {
			logger.Error("Write buffer: flush of %s failed: %v", id, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close flushes every pending window and releases the buffer. The backend
// stays open.
func (b *BufferedStore) Close(ctx context.Context) error {
	err := b.FlushAll(ctx)
	_ = b.cache.Close()
	return err
}

func (b *BufferedStore) flushLocked(ctx context.Context, id content.ContentID) error {
	start, data, ok := b.cache.Window(id)
	if !ok {
		return nil
	}

	began := time.Now()
	err := b.backend.WriteAt(ctx, id, data, start)
	b.metrics.ObserveFlush(int64(len(data)), time.Since(began), err)
	if err != nil {
		// The window stays buffered for the next attempt
		return fmt.Errorf("flush %s: %w", id, err)
	}

	logger.Debug("Write buffer: flushed %d bytes of %s at %d", len(data), id, start)
	return b.cache.Reset(id)
}

// drop discards pending writes of ids.
func (b *BufferedStore) drop(ids ...content.ContentID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		_ = b.cache.Reset(id)
	}
}

// ============================================================================
// Pass-through operations
// ============================================================================

func (b *BufferedStore) ReadAt(ctx context.Context, id content.ContentID, p []byte, offset int64) error {
	if err := b.Flush(ctx, id); err != nil {
		return err
	}
	return b.backend.ReadAt(ctx, id, p, offset)
}

func (b *BufferedStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := b.Flush(ctx, id); err != nil {
		return 0, err
	}
	return b.backend.GetContentSize(ctx, id)
}

func (b *BufferedStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := b.Flush(ctx, id); err != nil {
		return false, err
	}
	return b.backend.ContentExists(ctx, id)
}

// GetStorageStats reports the backend; pending bytes are not counted.
func (b *BufferedStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	return b.backend.GetStorageStats(ctx)
}

func (b *BufferedStore) Truncate(ctx context.Context, id content.ContentID, newSize uint64) error {
	if err := b.Flush(ctx, id); err != nil {
		return err
	}
	return b.backend.Truncate(ctx, id, newSize)
}

func (b *BufferedStore) Delete(ctx context.Context, id content.ContentID) error {
	b.drop(id)
	return b.backend.Delete(ctx, id)
}

func (b *BufferedStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	b.drop(id)
	return b.backend.WriteContent(ctx, id, data)
}

func (b *BufferedStore) ListAllContent(ctx context.Context) ([]content.ContentID, error) {
	return b.backend.ListAllContent(ctx)
}

func (b *BufferedStore) DeleteBatch(ctx context.Context, ids []content.ContentID) (map[content.ContentID]error, error) {
	b.drop(ids...)
	return b.backend.DeleteBatch(ctx, ids)
}

var (
	_ content.Store   = (*BufferedStore)(nil)
	_ content.Flusher = (*BufferedStore)(nil)
)
