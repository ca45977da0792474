// Package catalog persists object metadata across restarts.
//
// The in-memory object store is rebuilt from a catalog at startup: every
// Record becomes one restored object, and the saved ID allocator position
// keeps IDs from ever being reused. Object content lives separately in a
// content store keyed by the object ID.
//
// Records are encoded with CBOR so that new fields can be added without
// breaking catalogs written by older versions.
package catalog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("catalog closed")

	// ErrCorrupted is returned when a stored record cannot be decoded or
	// does not match its key.
	ErrCorrupted = errors.New("catalog record corrupted")
)

// Record is the persisted form of one object's metadata.
type Record struct {
	ID            ots.ObjectID   `cbor:"1,keyasint"`
	Name          string         `cbor:"2,keyasint"`
	Type          ots.ObjectType `cbor:"3,keyasint"`
	CurrentSize   uint32         `cbor:"4,keyasint"`
	AllocatedSize uint32         `cbor:"5,keyasint"`
	FirstCreated  ots.DateTime   `cbor:"6,keyasint"`
	LastModified  ots.DateTime   `cbor:"7,keyasint"`
	Properties    ots.Properties `cbor:"8,keyasint"`
	Marked        bool           `cbor:"9,keyasint,omitempty"`
}

// RecordFromObject captures the persistent fields of obj.
func RecordFromObject(obj *store.Object) Record {
	return Record{
		ID:            obj.ID,
		Name:          obj.Name,
		Type:          obj.Type,
		CurrentSize:   obj.CurrentSize,
		AllocatedSize: obj.AllocatedSize,
		FirstCreated:  obj.FirstCreated,
		LastModified:  obj.LastModified,
		Properties:    obj.Properties,
		Marked:        obj.Marked,
	}
}

// Object converts the record back into an unlocked store object.
func (r Record) Object() store.Object {
	return store.Object{
		ID:            r.ID,
		Name:          r.Name,
		Type:          r.Type,
		CurrentSize:   r.CurrentSize,
		AllocatedSize: r.AllocatedSize,
		FirstCreated:  r.FirstCreated,
		LastModified:  r.LastModified,
		Properties:    r.Properties,
		Marked:        r.Marked,
	}
}

// Catalog is a durable table of object records.
//
// Implementations must be safe for concurrent use.
type Catalog interface {
	// Put inserts or replaces the record with rec.ID.
	Put(ctx context.Context, rec Record) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id ots.ObjectID) error

	// List returns every record ordered by ascending ID.
	List(ctx context.Context) ([]Record, error)

	// NextID returns the saved allocator position, or 0 when none was
	// ever saved.
	NextID(ctx context.Context) (ots.ObjectID, error)

	// SetNextID saves the allocator position.
	SetNextID(ctx context.Context, id ots.ObjectID) error

	// Close releases the underlying database.
	Close() error
}

// ============================================================================
// Encoding shared by the key-value backends
// ============================================================================

const (
	// prefixObject is followed by the 6-byte big-endian object ID so that
	// key order equals ID order.
	prefixObject = "obj:"

	// keyNextID holds the allocator position as 8 big-endian bytes.
	keyNextID = "meta:next_id"
)

// ObjectPrefix is the key prefix shared by all object records.
func ObjectPrefix() []byte {
	return []byte(prefixObject)
}

// ObjectKey returns the key of the record for id.
func ObjectKey(id ots.ObjectID) []byte {
	key := make([]byte, len(prefixObject)+6)
	copy(key, prefixObject)
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(id))
	copy(key[len(prefixObject):], raw[2:])
	return key
}

// IDFromKey extracts the object ID from a record key.
func IDFromKey(key []byte) (ots.ObjectID, error) {
	if len(key) != len(prefixObject)+6 || string(key[:len(prefixObject)]) != prefixObject {
		return 0, fmt.Errorf("%w: invalid key %q", ErrCorrupted, key)
	}
	var raw [8]byte
	copy(raw[2:], key[len(prefixObject):])
	return ots.ObjectID(binary.BigEndian.Uint64(raw[:])), nil
}

// NextIDKey returns the key holding the allocator position.
func NextIDKey() []byte {
	return []byte(keyNextID)
}

// EncodeRecord serializes rec.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	return data, nil
}

// DecodeRecord parses a record stored under key and checks that the
// embedded ID matches the key.
func DecodeRecord(key, data []byte) (Record, error) {
	id, err := IDFromKey(key)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: record %s: %v", ErrCorrupted, id, err)
	}
	if rec.ID != id {
		return Record{}, fmt.Errorf("%w: key %s holds record %s", ErrCorrupted, id, rec.ID)
	}
	return rec, nil
}

// EncodeNextID serializes the allocator position.
func EncodeNextID(id ots.ObjectID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

// DecodeNextID parses the allocator position.
func DecodeNextID(data []byte) (ots.ObjectID, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: next ID has %d bytes", ErrCorrupted, len(data))
	}
	return ots.ObjectID(binary.BigEndian.Uint64(data)), nil
}
