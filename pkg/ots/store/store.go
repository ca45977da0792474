// Package store implements the object store: a fixed-capacity arena of
// objects addressed by generation-checked handles, plus the ID allocator.
//
// The store is the single source of truth for object metadata on a server.
// Filtered views never own objects; they keep handles and resolve them on
// every access, so a handle that outlives its object simply stops resolving.
//
// Thread Safety:
// The store is NOT safe for concurrent use. It is owned by the engine, which
// serializes every inbound event.
package store

import (
	"slices"
	"unicode/utf8"

	"github.com/marmos91/dittoots/pkg/ots"
)

// DirectoryName is the name of the synthetic directory listing object.
const DirectoryName = "Directory"

// Object is one unit of transferable content.
type Object struct {
	ID            ots.ObjectID
	Name          string
	Type          ots.ObjectType
	CurrentSize   uint32
	AllocatedSize uint32
	FirstCreated  ots.DateTime
	LastModified  ots.DateTime
	Properties    ots.Properties
	Marked        bool

	// lockOwner is the session currently running a read or write procedure
	// on the object, empty when unlocked.
	lockOwner string
}

// IsDirectory reports whether o is the directory listing object.
func (o *Object) IsDirectory() bool {
	return o.ID == ots.DirectoryListingID
}

// Locked reports whether a procedure currently owns the object.
func (o *Object) Locked() bool {
	return o.lockOwner != ""
}

// LockOwner returns the session owning the lock, or "".
func (o *Object) LockOwner() string {
	return o.lockOwner
}

// Snapshot returns a detached copy of the object's metadata.
func (o *Object) Snapshot() Object {
	c := *o
	c.lockOwner = ""
	return c
}

// Handle is a stable reference to an arena slot. A handle only resolves
// while the object it was issued for is alive.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether the handle was ever issued.
func (h Handle) Valid() bool {
	return h.gen != 0
}

type slot struct {
	obj  Object
	gen  uint32
	used bool
}

// Store is the fixed-capacity object table.
type Store struct {
	slots  []slot
	byID   map[ots.ObjectID]uint32
	free   []uint32
	nextID ots.ObjectID

	// generation increments on every structural change (create, delete,
	// restore) so callers can tell whether views are stale.
	generation uint64
}

// New creates a store holding up to capacity objects in addition to the
// directory listing object.
func New(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}

	s := &Store{
		slots:  make([]slot, capacity+1),
		byID:   make(map[ots.ObjectID]uint32, capacity+1),
		nextID: ots.FirstObjectID,
	}

	s.slots[0] = slot{
		obj: Object{
			ID:         ots.DirectoryListingID,
			Name:       DirectoryName,
			Type:       ots.DirectoryListingType,
			Properties: ots.PropertyRead,
		},
		gen:  1,
		used: true,
	}
	s.byID[ots.DirectoryListingID] = 0

	for i := capacity; i >= 1; i-- {
		s.free = append(s.free, uint32(i))
	}

	return s
}

// Capacity returns the number of regular objects the store can hold.
func (s *Store) Capacity() int {
	return len(s.slots) - 1
}

// Len returns the number of live objects, including the directory object.
func (s *Store) Len() int {
	return len(s.byID)
}

// Generation returns the structural change counter.
func (s *Store) Generation() uint64 {
	return s.generation
}

// NextID returns the ID the next Create will assign.
func (s *Store) NextID() ots.ObjectID {
	return s.nextID
}

// SetNextID moves the allocator forward. It never moves it backwards.
func (s *Store) SetNextID(id ots.ObjectID) {
	if id > s.nextID {
		s.nextID = id
	}
}

// Create allocates a new object.
//
// The object starts with allocated size = size, current size 0, unset
// timestamps and the given properties.
//
// The returned pointer aliases an arena slot. It is only valid until the
// object is deleted, after which the slot may hold another object.
//
// Returns:
//   - *Object: The new object (owned by the store)
//   - error: ErrCapacity when the table is full or IDs are exhausted,
//     ErrInvalidName for an over-long name
func (s *Store) Create(name string, typ ots.ObjectType, size uint32, props ots.Properties) (*Object, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if len(s.free) == 0 {
		return nil, newError(ErrCapacity, "object store full")
	}
	if s.nextID > ots.MaxObjectID {
		return nil, newError(ErrCapacity, "object ID space exhausted")
	}

	id := s.nextID
	s.nextID++

	obj := s.insert(Object{
		ID:            id,
		Name:          name,
		Type:          typ,
		AllocatedSize: size,
		Properties:    props & ots.PropertiesMask,
	})
	return obj, nil
}

// Restore re-inserts a previously persisted object with its original ID.
// The allocator is advanced past the restored ID.
func (s *Store) Restore(obj Object) (*Object, error) {
	if obj.ID < ots.FirstObjectID || !obj.ID.Valid() {
		return nil, newObjectError(ErrReserved, "cannot restore reserved object ID", obj.ID)
	}
	if _, exists := s.byID[obj.ID]; exists {
		return nil, newObjectError(ErrDuplicateID, "object ID already in use", obj.ID)
	}
	if err := validateName(obj.Name); err != nil {
		return nil, err
	}
	if len(s.free) == 0 {
		return nil, newError(ErrCapacity, "object store full")
	}

	obj.lockOwner = ""
	if obj.CurrentSize > obj.AllocatedSize {
		obj.AllocatedSize = obj.CurrentSize
	}
	s.SetNextID(obj.ID + 1)

	return s.insert(obj), nil
}

func (s *Store) insert(obj Object) *Object {
	idx := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]

	sl := &s.slots[idx]
	sl.gen++
	sl.used = true
	sl.obj = obj

	s.byID[obj.ID] = idx
	s.generation++
	return &sl.obj
}

// Delete removes an object.
//
// Returns:
//   - error: ErrNotFound, ErrReserved for the directory object, ErrLocked
//     while a procedure owns the object
func (s *Store) Delete(id ots.ObjectID) error {
	if id == ots.DirectoryListingID {
		return newObjectError(ErrReserved, "directory listing object cannot be deleted", id)
	}
	idx, ok := s.byID[id]
	if !ok {
		return newObjectError(ErrNotFound, "object not found", id)
	}

	sl := &s.slots[idx]
	if sl.obj.Locked() {
		return newObjectError(ErrLocked, "object locked", id)
	}

	sl.used = false
	sl.obj = Object{}
	delete(s.byID, id)
	s.free = append(s.free, idx)
	s.generation++
	return nil
}

// Find returns the live object with the given ID. The pointer aliases an
// arena slot and must not be used after the object is deleted.
func (s *Store) Find(id ots.ObjectID) (*Object, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.slots[idx].obj, true
}

// FindByName returns the live object with the given name.
func (s *Store) FindByName(name string) (*Object, bool) {
	for _, obj := range s.Objects() {
		if obj.Name == name {
			return obj, true
		}
	}
	return nil, false
}

// Directory returns the directory listing object.
func (s *Store) Directory() *Object {
	return &s.slots[0].obj
}

// Handle returns the handle of the live object with the given ID.
func (s *Store) Handle(id ots.ObjectID) (Handle, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Handle{}, false
	}
	return Handle{index: idx, gen: s.slots[idx].gen}, true
}

// Get resolves a handle. Stale handles return false.
func (s *Store) Get(h Handle) (*Object, bool) {
	if !h.Valid() || int(h.index) >= len(s.slots) {
		return nil, false
	}
	sl := &s.slots[h.index]
	if !sl.used || sl.gen != h.gen {
		return nil, false
	}
	return &sl.obj, true
}

// Handles returns handles to every live object in ascending ID order.
func (s *Store) Handles() []Handle {
	ids := s.IDs()
	handles := make([]Handle, len(ids))
	for i, id := range ids {
		idx := s.byID[id]
		handles[i] = Handle{index: idx, gen: s.slots[idx].gen}
	}
	return handles
}

// IDs returns the IDs of every live object in ascending order.
func (s *Store) IDs() []ots.ObjectID {
	ids := make([]ots.ObjectID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Objects returns every live object in ascending ID order.
func (s *Store) Objects() []*Object {
	ids := s.IDs()
	objs := make([]*Object, len(ids))
	for i, id := range ids {
		objs[i] = &s.slots[s.byID[id]].obj
	}
	return objs
}

// ============================================================================
// Metadata mutations
// ============================================================================

func (s *Store) lookup(id ots.ObjectID) (*Object, error) {
	obj, ok := s.Find(id)
	if !ok {
		return nil, newObjectError(ErrNotFound, "object not found", id)
	}
	return obj, nil
}

func validateName(name string) error {
	if len(name) > ots.MaxNameLength {
		return newError(ErrInvalidName, "object name too long")
	}
	if !utf8.ValidString(name) {
		return newError(ErrInvalidName, "object name is not valid UTF-8")
	}
	return nil
}

// Rename changes an object's name. Names must be unique across the store.
func (s *Store) Rename(id ots.ObjectID, name string) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	if obj.IsDirectory() {
		return newObjectError(ErrReserved, "directory listing object cannot be renamed", id)
	}
	if err := validateName(name); err != nil {
		return err
	}
	if obj.Name == name {
		return nil
	}
	for _, other := range s.Objects() {
		if other.ID != id && other.Name == name {
			return newObjectError(ErrNameExists, "object name already exists", other.ID)
		}
	}
	obj.Name = name
	return nil
}

// SetFirstCreated updates the first-created timestamp.
func (s *Store) SetFirstCreated(id ots.ObjectID, t ots.DateTime) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	obj.FirstCreated = t
	return nil
}

// SetLastModified updates the last-modified timestamp.
func (s *Store) SetLastModified(id ots.ObjectID, t ots.DateTime) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	obj.LastModified = t
	return nil
}

// SetProperties replaces the capability bitmask.
func (s *Store) SetProperties(id ots.ObjectID, props ots.Properties) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	if obj.IsDirectory() {
		return newObjectError(ErrReserved, "directory listing properties are fixed", id)
	}
	obj.Properties = props & ots.PropertiesMask
	return nil
}

// SetMarked sets or clears the marked flag.
func (s *Store) SetMarked(id ots.ObjectID, marked bool) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	obj.Marked = marked
	return nil
}

// Grow extends the object so that its current size is at least end. The
// allocated size follows when the current size passes it. Sizes never
// shrink.
func (s *Store) Grow(id ots.ObjectID, end uint32) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	if end > obj.CurrentSize {
		obj.CurrentSize = end
	}
	if obj.CurrentSize > obj.AllocatedSize {
		obj.AllocatedSize = obj.CurrentSize
	}
	return nil
}

// Truncate sets the current size to size, leaving the allocated size
// untouched unless it is smaller.
func (s *Store) Truncate(id ots.ObjectID, size uint32) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	obj.CurrentSize = size
	if obj.AllocatedSize < size {
		obj.AllocatedSize = size
	}
	return nil
}

// SetDirectorySize records the size of the freshly generated listing.
func (s *Store) SetDirectorySize(size uint32) {
	dir := s.Directory()
	dir.CurrentSize = size
	dir.AllocatedSize = size
}

// ============================================================================
// Procedure lock
// ============================================================================

// Lock marks the object as owned by owner. Locking an object already owned
// by the same owner succeeds.
func (s *Store) Lock(id ots.ObjectID, owner string) error {
	obj, err := s.lookup(id)
	if err != nil {
		return err
	}
	if obj.lockOwner != "" && obj.lockOwner != owner {
		return newObjectError(ErrLocked, "object locked", id)
	}
	obj.lockOwner = owner
	return nil
}

// Unlock releases the lock if owner holds it. It reports whether a lock was
// released.
func (s *Store) Unlock(id ots.ObjectID, owner string) bool {
	obj, ok := s.Find(id)
	if !ok || obj.lockOwner != owner || owner == "" {
		return false
	}
	obj.lockOwner = ""
	return true
}

// UnlockAll releases every lock held by owner and returns the affected IDs.
func (s *Store) UnlockAll(owner string) []ots.ObjectID {
	if owner == "" {
		return nil
	}
	var released []ots.ObjectID
	for _, obj := range s.Objects() {
		if obj.lockOwner == owner {
			obj.lockOwner = ""
			released = append(released, obj.ID)
		}
	}
	return released
}
