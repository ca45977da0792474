// Package content defines the file boundary of the object server: the
// storage of each object's bytes, addressed by a ContentID derived from the
// object ID.
//
// The object store owns metadata (names, sizes, properties); a content
// store owns only raw bytes. The engine reads object windows for OACP Read
// and Checksum, writes received chunks for OACP Write, truncates on
// truncate-mode writes and deletes content together with the object.
package content

import (
	"context"
	"fmt"
	"strconv"

	"github.com/marmos91/dittoots/pkg/ots"
)

// ContentID identifies stored content.
//
// Object content uses the object ID rendered as 12 lowercase hex digits, so
// every backend lists content in object ID order and the garbage collector
// can map content back to objects.
type ContentID string

// IDForObject returns the ContentID holding the bytes of the given object.
func IDForObject(id ots.ObjectID) ContentID {
	return ContentID(fmt.Sprintf("%012x", uint64(id)))
}

// ObjectID parses the object ID out of a ContentID produced by
// IDForObject.
func (c ContentID) ObjectID() (ots.ObjectID, error) {
	if len(c) != 12 {
		return 0, fmt.Errorf("content %q: %w", string(c), ErrInvalidContentID)
	}
	v, err := strconv.ParseUint(string(c), 16, 48)
	if err != nil {
		return 0, fmt.Errorf("content %q: %w", string(c), ErrInvalidContentID)
	}
	return ots.ObjectID(v), nil
}

// ============================================================================
// ContentStore Interface
// ============================================================================

// ContentStore provides read access to stored content.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// The engine serializes procedures on one object through the procedure
// lock, so concurrent writes to the same ContentID do not happen in
// practice.
type ContentStore interface {
	// ReadAt fills p with content starting at offset.
	//
	// Bytes past the end of the stored content read as zero, matching the
	// object model where allocated space beyond the written data is
	// zero-filled.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Content identifier
	//   - p: Destination buffer (filled completely on success)
	//   - offset: Byte offset where reading begins
	//
	// Returns:
	//   - error: ErrContentNotFound if the content does not exist,
	//     ErrInvalidOffset for a negative offset, or context/IO errors
	ReadAt(ctx context.Context, id ContentID, p []byte, offset int64) error

	// GetContentSize returns the stored size of the content in bytes.
	//
	// Returns:
	//   - uint64: Size in bytes
	//   - error: ErrContentNotFound if the content does not exist
	GetContentSize(ctx context.Context, id ContentID) (uint64, error)

	// ContentExists reports whether content exists. A missing item is not
	// an error.
	ContentExists(ctx context.Context, id ContentID) (bool, error)

	// GetStorageStats returns usage statistics. Backends that cannot
	// compute a field leave it zero.
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// WritableContentStore extends ContentStore with mutation.
type WritableContentStore interface {
	ContentStore

	// WriteAt writes data at offset, creating the content if needed. A gap
	// between the old end and offset is zero-filled.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Content identifier (created if it doesn't exist)
	//   - data: Data to write
	//   - offset: Byte offset where writing begins
	//
	// Returns:
	//   - error: ErrInvalidOffset for a negative offset, or context/IO errors
	WriteAt(ctx context.Context, id ContentID, data []byte, offset int64) error

	// Truncate changes the stored size, shrinking or zero-extending.
	//
	// Returns:
	//   - error: ErrContentNotFound if the content does not exist
	Truncate(ctx context.Context, id ContentID, newSize uint64) error

	// Delete removes content. Deleting missing content succeeds.
	Delete(ctx context.Context, id ContentID) error

	// WriteContent replaces the whole content in one operation.
	WriteContent(ctx context.Context, id ContentID, data []byte) error
}

// GarbageCollectableStore adds the listing and batch deletion used by the
// orphan content collector.
type GarbageCollectableStore interface {
	ContentStore

	// ListAllContent returns every stored ContentID, referenced or not.
	ListAllContent(ctx context.Context) ([]ContentID, error)

	// DeleteBatch removes several items on a best-effort basis.
	//
	// Returns:
	//   - map[ContentID]error: Items that failed (empty = all succeeded)
	//   - error: Only for context cancellation or catastrophic failures
	DeleteBatch(ctx context.Context, ids []ContentID) (failures map[ContentID]error, err error)
}

// Flusher is implemented by stores that hold writes back. The engine
// flushes an object's content when a write completes or is aborted.
type Flusher interface {
	Flush(ctx context.Context, id ContentID) error
}

// Store is the full capability set every DittoOTS backend implements.
type Store interface {
	WritableContentStore
	GarbageCollectableStore
}

// ============================================================================
// Supporting Types
// ============================================================================

// StorageStats contains statistics about content storage.
type StorageStats struct {
	// TotalSize is the total capacity in bytes (MaxUint64 when unlimited).
	TotalSize uint64

	// UsedSize is the sum of all content sizes.
	UsedSize uint64

	// AvailableSize is the remaining capacity (MaxUint64 when unlimited).
	AvailableSize uint64

	// ContentCount is the number of stored items.
	ContentCount uint64

	// AverageSize is UsedSize / ContentCount, or 0 when empty.
	AverageSize uint64
}

// NewStorageStats fills the derived fields of a StorageStats.
func NewStorageStats(total, used, available, count uint64) *StorageStats {
	avg := uint64(0)
	if count > 0 {
		avg = used / count
	}
	return &StorageStats{
		TotalSize:     total,
		UsedSize:      used,
		AvailableSize: available,
		ContentCount:  count,
		AverageSize:   avg,
	}
}

// Unlimited marks capacity fields of backends without a fixed size.
const Unlimited = ^uint64(0)

// FillAt copies the window [offset, offset+len(p)) of data into p,
// zero-filling what lies beyond len(data). Backends that hold the whole
// content in memory use it to implement ReadAt.
func FillAt(p, data []byte, offset int64) {
	n := 0
	if offset < int64(len(data)) {
		n = copy(p, data[offset:])
	}
	clear(p[n:])
}
