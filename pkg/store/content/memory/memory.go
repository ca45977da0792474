// Package memory implements in-memory content storage for DittoOTS.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// MemoryContentStore implements content.Store using a map of byte slices.
//
// It is meant for tests, development and small ephemeral deployments: all
// content is lost on restart, so pair it with the memory catalog.
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on the
// way in and out so callers never alias stored slices.
type MemoryContentStore struct {
	// data stores the object bytes keyed by ContentID
	data map[content.ContentID][]byte

	// maxSize caps any single item (0 = unlimited)
	maxSize uint64

	mu sync.RWMutex
}

// Option configures a MemoryContentStore.
type Option func(*MemoryContentStore)

// WithMaxSize caps the size of any single content item.
func WithMaxSize(n uint64) Option {
	return func(s *MemoryContentStore) {
		s.maxSize = n
	}
}

// NewMemoryContentStore creates an empty in-memory content store.
//
// Parameters:
//   - ctx: Context for cancellation (checked before initialization)
//   - opts: Optional settings
//
// Returns:
//   - *MemoryContentStore: Initialized store
//   - error: Only returns error if context is cancelled
func NewMemoryContentStore(ctx context.Context, opts ...Option) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &MemoryContentStore{
		data: make(map[content.ContentID][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetStorageStats computes statistics from the current map contents.
// Capacity is reported as unlimited.
func (s *MemoryContentStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	used := uint64(0)
	for _, data := range s.data {
		used += uint64(len(data))
	}

	return content.NewStorageStats(content.Unlimited, used, content.Unlimited, uint64(len(s.data))), nil
}

var _ content.Store = (*MemoryContentStore)(nil)
