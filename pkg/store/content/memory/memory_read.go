package memory

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// ============================================================================
// ContentStore Interface Implementation
// ============================================================================

// ReadAt fills p from the stored bytes at offset, zero-filling past the
// end.
//
// Returns:
//   - error: ErrContentNotFound if content doesn't exist, ErrInvalidOffset
//     for a negative offset, or context errors
func (s *MemoryContentStore) ReadAt(ctx context.Context, id content.ContentID, p []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[id]
	if !exists {
		return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}

	content.FillAt(p, data, offset)
	return nil
}

// GetContentSize returns the length of the stored slice.
func (s *MemoryContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[id]
	if !exists {
		return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}
	return uint64(len(data)), nil
}

// ContentExists reports whether the ContentID is present.
func (s *MemoryContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[id]
	return exists, nil
}
