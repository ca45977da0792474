// Package memory provides a volatile catalog. Records are lost when the
// process exits, which makes it the default for tests and ephemeral
// servers.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/catalog"
)

// MemoryCatalog keeps records in a map guarded by a mutex.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[ots.ObjectID]catalog.Record
	nextID  ots.ObjectID
	closed  bool
}

var _ catalog.Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[ots.ObjectID]catalog.Record)}
}

func (c *MemoryCatalog) Put(ctx context.Context, rec catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return catalog.ErrClosed
	}
	c.records[rec.ID] = rec
	return nil
}

func (c *MemoryCatalog) Delete(ctx context.Context, id ots.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return catalog.ErrClosed
	}
	delete(c.records, id)
	return nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]catalog.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, catalog.ErrClosed
	}

	ids := slices.Sorted(maps.Keys(c.records))
	out := make([]catalog.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.records[id])
	}
	return out, nil
}

func (c *MemoryCatalog) NextID(ctx context.Context) (ots.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, catalog.ErrClosed
	}
	return c.nextID, nil
}

func (c *MemoryCatalog) SetNextID(ctx context.Context, id ots.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return catalog.ErrClosed
	}
	c.nextID = id
	return nil
}

func (c *MemoryCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
