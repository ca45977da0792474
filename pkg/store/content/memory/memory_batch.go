package memory

import (
	"context"
	"slices"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// ============================================================================
// GarbageCollectableStore Interface Implementation
// ============================================================================

// ListAllContent returns a sorted snapshot of every stored ContentID.
func (s *MemoryContentStore) ListAllContent(ctx context.Context) ([]content.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]content.ContentID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteBatch removes every listed item under a single write lock. Memory
// deletion cannot fail, so the failure map is always empty unless the
// context is cancelled part way.
func (s *MemoryContentStore) DeleteBatch(ctx context.Context, ids []content.ContentID) (map[content.ContentID]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	failures := make(map[content.ContentID]error)
	for i, id := range ids {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				for _, rest := range ids[i:] {
					failures[rest] = err
				}
				return failures, err
			}
		}
		delete(s.data, id)
	}
	return failures, nil
}
