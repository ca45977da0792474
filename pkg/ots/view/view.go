// Package view implements the filtered object list: a per-session ordered
// subset of the object store produced by up to three filter slots and an
// optional sticky sort order, plus the "current object" cursor used by the
// control point procedures.
//
// A View keeps store handles, never objects. Every structural change to the
// store must be followed by Rebuild on every view sharing it.
package view

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/filter"
	"github.com/marmos91/dittoots/pkg/ots/store"
)

var (
	// ErrNoObject is returned when navigating an empty list.
	ErrNoObject = errors.New("no object in list")

	// ErrOutOfBounds is returned when stepping past either end of the list.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrNotFound is returned when GoTo does not find the ID in the list.
	ErrNotFound = errors.New("object ID not found in list")

	// ErrInvalidSlot is returned for a filter slot outside 0..MaxFilters-1.
	ErrInvalidSlot = errors.New("invalid filter slot")

	// ErrInvalidOrder is returned for an unknown sort key.
	ErrInvalidOrder = errors.New("invalid sort order")
)

// View is one filtered object list.
type View struct {
	store   *store.Store
	filters [ots.MaxFilters]filter.Filter
	order   ots.SortOrder

	// seq holds the handles of the objects passing every filter, in order
	seq []store.Handle

	// current indexes seq, -1 when no object is selected
	current int

	// built is the store generation seq was computed from
	built uint64
}

// New creates a view over st with every slot empty and builds it.
func New(st *store.Store) *View {
	v := &View{store: st, current: -1}
	for i := range v.filters {
		v.filters[i] = filter.None()
	}
	v.Rebuild()
	return v
}

// Store returns the store the view reads from.
func (v *View) Store() *store.Store {
	return v.store
}

// Stale reports whether the store changed structurally since the last
// rebuild.
func (v *View) Stale() bool {
	return v.built != v.store.Generation()
}

// Rebuild recomputes the sequence from the store, keeping the current
// object if it still passes the filters.
func (v *View) Rebuild() {
	keep, ok := v.currentID()
	v.rebuild(keep, ok)
}

// rebuild discards the sequence and re-evaluates every live object, then
// re-selects preserve when it is still a member.
func (v *View) rebuild(preserve ots.ObjectID, hasPreserve bool) {
	v.seq = v.seq[:0]
	v.current = -1

	for _, h := range v.store.Handles() {
		obj, ok := v.store.Get(h)
		if !ok {
			continue
		}
		if filter.MatchAll(v.filters[:], obj) {
			v.seq = append(v.seq, h)
		}
	}

	if v.order != ots.SortNone {
		v.sortSeq(v.order)
	}

	if hasPreserve {
		v.selectID(preserve)
	}
	v.built = v.store.Generation()
}

// ============================================================================
// Filters
// ============================================================================

// Filter returns the filter in slot.
func (v *View) Filter(slot int) (filter.Filter, error) {
	if slot < 0 || slot >= ots.MaxFilters {
		return filter.Filter{}, ErrInvalidSlot
	}
	return v.filters[slot], nil
}

// Filters returns a copy of all filter slots.
func (v *View) Filters() [ots.MaxFilters]filter.Filter {
	return v.filters
}

// ApplyFilter validates f, replaces slot and rebuilds the view.
func (v *View) ApplyFilter(slot int, f filter.Filter) error {
	if slot < 0 || slot >= ots.MaxFilters {
		return ErrInvalidSlot
	}
	if err := f.Validate(); err != nil {
		return err
	}
	v.filters[slot] = f
	v.Rebuild()
	return nil
}

// ResetFilters clears every slot without rebuilding. The name buffers of
// name filters are released with the old values.
func (v *View) ResetFilters() {
	for i := range v.filters {
		v.filters[i] = filter.None()
	}
}

// ============================================================================
// Sorting
// ============================================================================

// Order returns the sticky sort order.
func (v *View) Order() ots.SortOrder {
	return v.order
}

// Sort orders the sequence by key and makes the order sticky for future
// rebuilds. Sorting a list with at most one member is a no-op.
func (v *View) Sort(order ots.SortOrder) error {
	if !order.Valid() {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidOrder, uint8(order))
	}
	if len(v.seq) <= 1 {
		return nil
	}

	keep, ok := v.currentID()
	v.sortSeq(order)
	v.order = order
	v.current = -1
	if ok {
		v.selectID(keep)
	}
	return nil
}

func (v *View) sortSeq(order ots.SortOrder) {
	compare := Comparator(order)
	objs := make(map[store.Handle]*store.Object, len(v.seq))
	for _, h := range v.seq {
		obj, _ := v.store.Get(h)
		objs[h] = obj
	}
	slices.SortStableFunc(v.seq, func(a, b store.Handle) int {
		return compare(objs[a], objs[b])
	})
}

// Comparator returns a three-way comparison for order. Equal primary keys
// fall back to ascending object ID so the result is deterministic.
func Comparator(order ots.SortOrder) func(a, b *store.Object) int {
	var primary func(a, b *store.Object) int

	switch order.Key() {
	case ots.SortNameAscending:
		primary = func(a, b *store.Object) int { return cmp.Compare(a.Name, b.Name) }
	case ots.SortTypeAscending:
		primary = func(a, b *store.Object) int { return a.Type.Compare(b.Type) }
	case ots.SortCurrentSizeAscending:
		primary = func(a, b *store.Object) int { return cmp.Compare(a.CurrentSize, b.CurrentSize) }
	case ots.SortFirstCreatedAscending:
		primary = func(a, b *store.Object) int { return a.FirstCreated.Compare(b.FirstCreated) }
	case ots.SortLastModifiedAscending:
		primary = func(a, b *store.Object) int { return a.LastModified.Compare(b.LastModified) }
	default:
		primary = func(a, b *store.Object) int { return 0 }
	}

	descending := order.Descending()
	return func(a, b *store.Object) int {
		c := primary(a, b)
		if descending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}
}

// ============================================================================
// Current object and navigation
// ============================================================================

// Len returns the number of objects in the list.
func (v *View) Len() int {
	return len(v.seq)
}

// Objects resolves the sequence in order.
func (v *View) Objects() []*store.Object {
	objs := make([]*store.Object, 0, len(v.seq))
	for _, h := range v.seq {
		if obj, ok := v.store.Get(h); ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

// IDs returns the object IDs in list order.
func (v *View) IDs() []ots.ObjectID {
	objs := v.Objects()
	ids := make([]ots.ObjectID, len(objs))
	for i, o := range objs {
		ids[i] = o.ID
	}
	return ids
}

// Current returns the current object. A current handle that no longer
// resolves is cleared.
func (v *View) Current() (*store.Object, bool) {
	if v.current < 0 || v.current >= len(v.seq) {
		return nil, false
	}
	obj, ok := v.store.Get(v.seq[v.current])
	if !ok {
		v.current = -1
		return nil, false
	}
	return obj, true
}

func (v *View) currentID() (ots.ObjectID, bool) {
	obj, ok := v.Current()
	if !ok {
		return 0, false
	}
	return obj.ID, true
}

// SetCurrent selects id if it is a member of the list.
func (v *View) SetCurrent(id ots.ObjectID) bool {
	return v.selectID(id)
}

// ClearCurrent deselects the current object.
func (v *View) ClearCurrent() {
	v.current = -1
}

func (v *View) selectID(id ots.ObjectID) bool {
	for i, h := range v.seq {
		if obj, ok := v.store.Get(h); ok && obj.ID == id {
			v.current = i
			return true
		}
	}
	return false
}

func (v *View) moveTo(i int) (*store.Object, error) {
	v.current = i
	obj, ok := v.Current()
	if !ok {
		return nil, ErrNoObject
	}
	return obj, nil
}

// First selects the first object.
func (v *View) First() (*store.Object, error) {
	if len(v.seq) == 0 {
		return nil, ErrNoObject
	}
	return v.moveTo(0)
}

// Last selects the last object.
func (v *View) Last() (*store.Object, error) {
	if len(v.seq) == 0 {
		return nil, ErrNoObject
	}
	return v.moveTo(len(v.seq) - 1)
}

// Previous steps the cursor back. Stepping before the first object, or
// stepping with nothing selected, is out of bounds and leaves the cursor
// unchanged.
func (v *View) Previous() (*store.Object, error) {
	if len(v.seq) == 0 {
		return nil, ErrNoObject
	}
	if v.current <= 0 {
		return nil, ErrOutOfBounds
	}
	return v.moveTo(v.current - 1)
}

// Next steps the cursor forward. Stepping past the last object, or
// stepping with nothing selected, is out of bounds and leaves the cursor
// unchanged.
func (v *View) Next() (*store.Object, error) {
	if len(v.seq) == 0 {
		return nil, ErrNoObject
	}
	if v.current < 0 || v.current >= len(v.seq)-1 {
		return nil, ErrOutOfBounds
	}
	return v.moveTo(v.current + 1)
}

// GoTo selects the object with the given ID.
func (v *View) GoTo(id ots.ObjectID) (*store.Object, error) {
	if len(v.seq) == 0 {
		return nil, ErrNoObject
	}
	if !v.selectID(id) {
		return nil, ErrNotFound
	}
	obj, _ := v.Current()
	return obj, nil
}
