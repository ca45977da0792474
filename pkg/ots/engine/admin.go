package engine

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// ============================================================================
// Server-side administration
// ============================================================================

// Restore loads every object saved in the catalog into the store and
// restores the ID allocator. It is meant to run once, before the first
// session connects.
//
// Records whose object cannot be restored (duplicate ID, over-long name,
// full store) are skipped with a warning.
//
// Returns:
//   - int: Number of objects restored
//   - error: Catalog read failure
func (e *Engine) Restore(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.catalog == nil {
		return 0, nil
	}

	records, err := e.catalog.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list catalog: %w", err)
	}

	restored := 0
	for _, rec := range records {
		if _, err := e.store.Restore(rec.Object()); err != nil {
			logger.Warn("Skipping catalog record %s (%q): %v", rec.ID, rec.Name, err)
			continue
		}
		restored++
	}

	next, err := e.catalog.NextID(ctx)
	if err != nil {
		return restored, fmt.Errorf("failed to read next object ID: %w", err)
	}
	if next > e.store.NextID() {
		e.store.SetNextID(next)
	}

	e.refreshListing()
	e.rebuildViews()

	logger.Info("Restored %d objects from catalog (next ID %s)", restored, e.store.NextID())
	return restored, nil
}

// Import adds an object with the given content. The name must be unique.
// Connected sessions are told about the new object.
func (e *Engine) Import(ctx context.Context, name string, typ ots.ObjectType, data []byte) (ots.ObjectID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if typ.IsZero() {
		typ = ots.UnspecifiedType
	}
	if uint64(len(data)) > uint64(^uint32(0)) ||
		(e.cfg.MaxObjectSize > 0 && uint64(len(data)) > uint64(e.cfg.MaxObjectSize)) {
		return 0, fmt.Errorf("import %q: %d bytes: %w", name, len(data), content.ErrTooLarge)
	}
	if _, exists := e.store.FindByName(name); exists {
		return 0, fmt.Errorf("import %q: %w", name, &store.Error{Code: store.ErrNameExists, Message: "object name already exists"})
	}

	size := uint32(len(data))
	obj, err := e.store.Create(name, typ, size, e.cfg.DefaultProperties)
	if err != nil {
		return 0, fmt.Errorf("import %q: %w", name, err)
	}
	id := obj.ID

	if err := e.content.WriteContent(ctx, content.IDForObject(id), data); err != nil {
		_ = e.store.Delete(id)
		return 0, fmt.Errorf("import %q: failed to store content: %w", name, err)
	}

	now := e.stamp()
	_ = e.store.Grow(id, size)
	_ = e.store.SetFirstCreated(id, now)
	_ = e.store.SetLastModified(id, now)

	e.persist(ctx, id)
	e.persistNextID(ctx)
	e.rebuildViews()
	e.notifyChanged(nil, ots.ChangeCreation, id)

	logger.Info("Imported object %s %q (%d bytes)", id, name, size)
	return id, nil
}

// Remove deletes an object from the server side. Locked objects cannot be
// removed.
func (e *Engine) Remove(ctx context.Context, id ots.ObjectID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Delete(id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}

	e.forget(ctx, id)
	e.rebuildViews()
	e.notifyChanged(nil, ots.ChangeDeletion, id)

	logger.Info("Removed object %s", id)
	return nil
}

// Objects returns a snapshot of every object, directory object first.
func (e *Engine) Objects() []store.Object {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshListing()
	objs := e.store.Objects()
	out := make([]store.Object, len(objs))
	for i, obj := range objs {
		out[i] = obj.Snapshot()
	}
	return out
}

// Object returns a snapshot of one object.
func (e *Engine) Object(id ots.ObjectID) (store.Object, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.store.Find(id)
	if !ok {
		return store.Object{}, false
	}
	return obj.Snapshot(), true
}

// ReadContent returns the current contents of an object.
func (e *Engine) ReadContent(ctx context.Context, id ots.ObjectID) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.store.Find(id)
	if !ok {
		return nil, &store.Error{Code: store.ErrNotFound, Message: "object not found " + id.String()}
	}
	if obj.IsDirectory() {
		listing := e.refreshListing()
		return append([]byte(nil), listing...), nil
	}
	return e.readWindow(ctx, obj, 0, obj.CurrentSize)
}

// ContentIDs returns the content IDs of every live object. The garbage
// collector treats anything else in the content store as an orphan.
func (e *Engine) ContentIDs() map[content.ContentID]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make(map[content.ContentID]struct{}, e.store.Len())
	for _, id := range e.store.IDs() {
		if id == ots.DirectoryListingID {
			continue
		}
		ids[content.IDForObject(id)] = struct{}{}
	}
	return ids
}

// Catalog returns the catalog the engine persists to, or nil.
func (e *Engine) Catalog() catalog.Catalog {
	return e.catalog
}
