package memory

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// ============================================================================
// WritableContentStore Interface Implementation
// ============================================================================

// WriteAt writes data at offset with sparse semantics:
//   - If content doesn't exist: create with zeros up to offset, then data
//   - If offset > current size: extend with zeros, then write data
//   - If offset < current size: overwrite existing data
func (s *MemoryContentStore) WriteAt(ctx context.Context, id content.ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	end := uint64(offset) + uint64(len(data))
	if s.maxSize > 0 && end > s.maxSize {
		return fmt.Errorf("content %s: %d bytes: %w", id, end, content.ErrTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[id]
	if uint64(len(existing)) < end {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	s.data[id] = existing

	return nil
}

// Truncate shrinks or zero-extends the content.
func (s *MemoryContentStore) Truncate(ctx context.Context, id content.ContentID, newSize uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.data[id]
	if !exists {
		return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}

	switch {
	case newSize < uint64(len(data)):
		s.data[id] = append([]byte(nil), data[:newSize]...)
	case newSize > uint64(len(data)):
		grown := make([]byte, newSize)
		copy(grown, data)
		s.data[id] = grown
	}
	return nil
}

// Delete removes content. Missing content is not an error.
func (s *MemoryContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

// WriteContent replaces the content with a copy of data.
func (s *MemoryContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.maxSize > 0 && uint64(len(data)) > s.maxSize {
		return fmt.Errorf("content %s: %d bytes: %w", id, len(data), content.ErrTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[id] = append(make([]byte, 0, len(data)), data...)
	return nil
}
