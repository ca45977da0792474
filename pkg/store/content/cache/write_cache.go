// Package cache buffers object writes in memory before they reach a
// content store.
//
// OACP Write delivers an object in transfer channel chunks of a few hundred
// bytes. Writing each chunk through to a backend such as S3 costs a full
// read-modify-write of the object per chunk, so the chunks are gathered
// into one contiguous window per ContentID and written with a single
// WriteAt when the transfer ends.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// Default buffer capacity per object
const defaultBufferCapacity = 64 * 1024

var (
	// ErrNotContiguous is returned when a write neither overlaps nor
	// extends the window already buffered for its ContentID.
	ErrNotContiguous = errors.New("write is not contiguous with the buffered window")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("cache is closed")
)

// WriteCache holds one window of pending writes per ContentID.
//
// A window is a contiguous byte range [start, start+size). A write is
// accepted when it begins inside the window or exactly at its end.
//
// Thread Safety:
// Implementations must be safe for concurrent operations across different
// content IDs. Operations on the same content ID are serialized internally.
type WriteCache interface {
	// WriteAt copies data into the window of id at offset, creating the
	// window when none exists.
	//
	// Returns:
	//   - ErrNotContiguous: offset is outside the existing window
	//   - ErrClosed: the cache was closed
	WriteAt(id content.ContentID, data []byte, offset int64) error

	// Window returns a copy of the buffered bytes of id and the object
	// offset they start at. ok is false when nothing is buffered.
	Window(id content.ContentID) (start int64, data []byte, ok bool)

	// Size returns the number of buffered bytes of id.
	Size(id content.ContentID) int64

	// Reset drops the window of id.
	Reset(id content.ContentID) error

	// LastWrite returns when id was last written, or the zero time.
	LastWrite(id content.ContentID) time.Time

	// List returns the content IDs with a window.
	List() []content.ContentID

	// Close drops every window. Later operations fail with ErrClosed.
	Close() error
}

// ============================================================================
// MemoryWriteCache - In-memory implementation
// ============================================================================

// buffer is the window of one object.
type buffer struct {
	start     int64
	data      []byte
	lastWrite time.Time
	mu        sync.Mutex
}

// MemoryWriteCache keeps windows in memory.
//
// Memory Usage:
// Total memory is the sum of all window sizes. Windows are released on
// Reset or Close.
type MemoryWriteCache struct {
	buffers map[content.ContentID]*buffer
	mu      sync.RWMutex
	closed  bool
	metrics Metrics
	now     func() time.Time
}

// NewMemoryWriteCache creates an in-memory write cache. A nil metrics
// disables collection.
func NewMemoryWriteCache(metrics Metrics) *MemoryWriteCache {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &MemoryWriteCache{
		buffers: make(map[content.ContentID]*buffer),
		metrics: metrics,
		now:     time.Now,
	}
}

func (c *MemoryWriteCache) getBuffer(id content.ContentID) (*buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false
	}
	buf, exists := c.buffers[id]
	return buf, exists
}

// WriteAt copies data into the window of id.
func (c *MemoryWriteCache) WriteAt(id content.ContentID, data []byte, offset int64) error {
	start := c.now()

	if offset < 0 {
		return fmt.Errorf("negative offset: %d", offset)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	buf, exists := c.buffers[id]
	if !exists {
		buf = &buffer{start: offset, data: make([]byte, 0, max(defaultBufferCapacity, len(data)))}
		c.buffers[id] = buf
		c.metrics.RecordBufferCount(len(c.buffers))
	}
	c.mu.Unlock()

	buf.mu.Lock()
	defer buf.mu.Unlock()

	rel := offset - buf.start
	if rel < 0 || rel > int64(len(buf.data)) {
		return fmt.Errorf("write at %d, window [%d, %d): %w",
			offset, buf.start, buf.start+int64(len(buf.data)), ErrNotContiguous)
	}

	if end := rel + int64(len(data)); end > int64(len(buf.data)) {
		// append grows the backing array geometrically
		buf.data = append(buf.data[:rel], data...)
	} else {
		copy(buf.data[rel:], data)
	}
	buf.lastWrite = c.now()

	c.metrics.ObserveWrite(int64(len(data)), c.now().Sub(start))
	return nil
}

// Window returns a copy of the buffered bytes of id.
func (c *MemoryWriteCache) Window(id content.ContentID) (int64, []byte, bool) {
	buf, exists := c.getBuffer(id)
	if !exists {
		return 0, nil, false
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	data := make([]byte, len(buf.data))
	copy(data, buf.data)
	return buf.start, data, true
}

// Size returns the number of buffered bytes of id.
func (c *MemoryWriteCache) Size(id content.ContentID) int64 {
	buf, exists := c.getBuffer(id)
	if !exists {
		return 0
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	return int64(len(buf.data))
}

// Reset drops the window of id.
func (c *MemoryWriteCache) Reset(id content.ContentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, exists := c.buffers[id]; !exists {
		return nil
	}
	delete(c.buffers, id)
	c.metrics.RecordBufferCount(len(c.buffers))
	return nil
}

// LastWrite returns when id was last written.
func (c *MemoryWriteCache) LastWrite(id content.ContentID) time.Time {
	buf, exists := c.getBuffer(id)
	if !exists {
		return time.Time{}
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.lastWrite
}

// List returns the content IDs with a window.
func (c *MemoryWriteCache) List() []content.ContentID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]content.ContentID, 0, len(c.buffers))
	for id := range c.buffers {
		result = append(result, id)
	}
	return result
}

// Close drops every window.
func (c *MemoryWriteCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.buffers = nil
	c.closed = true
	c.metrics.RecordBufferCount(0)
	return nil
}

var _ WriteCache = (*MemoryWriteCache)(nil)
