package fs

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// ListAllContent returns the ContentIDs of every regular file in the base
// directory, sorted. Temporary files left by an interrupted WriteContent
// are skipped.
func (r *FSContentStore) ListAllContent(ctx context.Context) ([]content.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list content directory: %w", err)
	}

	ids := make([]content.ContentID, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		ids = append(ids, content.ContentID(entry.Name()))
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteBatch deletes each item in turn, collecting failures.
func (r *FSContentStore) DeleteBatch(ctx context.Context, ids []content.ContentID) (map[content.ContentID]error, error) {
	failures := make(map[content.ContentID]error)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				failures[rest] = err
			}
			return failures, err
		}
		if err := r.Delete(ctx, id); err != nil {
			failures[id] = err
		}
	}

	return failures, nil
}

// GetStorageStats sums the sizes of the content files. Capacity fields are
// left at zero; they would need platform-specific syscalls.
func (r *FSContentStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	ids, err := r.ListAllContent(ctx)
	if err != nil {
		return nil, err
	}

	used := uint64(0)
	for _, id := range ids {
		size, err := r.GetContentSize(ctx, id)
		if err != nil {
			continue
		}
		used += size
	}

	return content.NewStorageStats(0, used, 0, uint64(len(ids))), nil
}
