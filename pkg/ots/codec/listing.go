package codec

import (
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
)

// Directory listing record flags.
const (
	recordFlagType128      uint8 = 0x01
	recordFlagCurrentSize  uint8 = 0x02
	recordFlagAllocSize    uint8 = 0x04
	recordFlagFirstCreated uint8 = 0x08
	recordFlagLastModified uint8 = 0x10
	recordFlagProperties   uint8 = 0x20
)

// minRecordLen is length(2) + id(6) + name length(1) + flags(1) + type(2).
const minRecordLen = 12

// EncodeDirectoryListing serializes one record per object. The directory
// listing object itself is skipped.
//
// Record layout:
//
//	length u16 (whole record), id u48, name length u8, name, flags u8,
//	type (2 or 16), current size u32, allocated size u32,
//	[first-created 7B], [last-modified 7B], properties u32
func EncodeDirectoryListing(objs []*store.Object) []byte {
	var out []byte
	for _, obj := range objs {
		if obj.IsDirectory() {
			continue
		}
		out = appendRecord(out, obj)
	}
	return out
}

func appendRecord(b []byte, obj *store.Object) []byte {
	flags := recordFlagCurrentSize | recordFlagAllocSize | recordFlagProperties
	if obj.Type.Width != ots.TypeWidth16 {
		flags |= recordFlagType128
	}
	if !obj.FirstCreated.IsZero() {
		flags |= recordFlagFirstCreated
	}
	if !obj.LastModified.IsZero() {
		flags |= recordFlagLastModified
	}

	start := len(b)
	b = appendUint16(b, 0) // patched below
	b = appendUint48(b, obj.ID)
	b = append(b, uint8(len(obj.Name)))
	b = append(b, obj.Name...)
	b = append(b, flags)
	b = appendType(b, obj.Type)
	b = appendUint32(b, obj.CurrentSize)
	b = appendUint32(b, obj.AllocatedSize)
	if flags&recordFlagFirstCreated != 0 {
		b = appendDateTime(b, obj.FirstCreated)
	}
	if flags&recordFlagLastModified != 0 {
		b = appendDateTime(b, obj.LastModified)
	}
	b = appendUint32(b, uint32(obj.Properties))

	recLen := uint16(len(b) - start)
	b[start] = byte(recLen)
	b[start+1] = byte(recLen >> 8)
	return b
}

// DecodeDirectoryListing parses a listing blob back into objects. Fields
// absent from a record are left zero. Bytes beyond the fields a record
// declares are skipped so newer record layouts still parse.
func DecodeDirectoryListing(b []byte) ([]store.Object, error) {
	var objs []store.Object

	for off := 0; off < len(b); {
		if len(b)-off < 2 {
			return nil, malformed("truncated record header at offset %d", off)
		}
		recLen := int(b[off]) | int(b[off+1])<<8
		if recLen < minRecordLen || off+recLen > len(b) {
			return nil, malformed("bad record length %d at offset %d", recLen, off)
		}

		obj, err := decodeRecord(b[off+2 : off+recLen])
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
		off += recLen
	}

	return objs, nil
}

func decodeRecord(b []byte) (store.Object, error) {
	r := newReader(b)

	var obj store.Object
	obj.ID = r.u48()
	nameLen := int(r.u8())
	name, err := DecodeName(r.take(nameLen))
	if r.err != nil {
		return store.Object{}, r.err
	}
	if err != nil {
		return store.Object{}, err
	}
	obj.Name = name

	flags := r.u8()
	if flags&recordFlagType128 != 0 {
		obj.Type = r.objectType(16)
	} else {
		obj.Type = r.objectType(2)
	}
	if flags&recordFlagCurrentSize != 0 {
		obj.CurrentSize = r.u32()
	}
	if flags&recordFlagAllocSize != 0 {
		obj.AllocatedSize = r.u32()
	}
	if flags&recordFlagFirstCreated != 0 {
		obj.FirstCreated = r.dateTime()
	}
	if flags&recordFlagLastModified != 0 {
		obj.LastModified = r.dateTime()
	}
	if flags&recordFlagProperties != 0 {
		obj.Properties = ots.Properties(r.u32())
	}

	if r.err != nil {
		return store.Object{}, r.err
	}
	return obj, nil
}

// ListingSize returns the encoded size of the listing without building it.
func ListingSize(objs []*store.Object) int {
	n := 0
	for _, obj := range objs {
		if obj.IsDirectory() {
			continue
		}
		n += minRecordLen - 2 + typeWireLen(obj.Type) + len(obj.Name) + 4 + 4 + 4
		if !obj.FirstCreated.IsZero() {
			n += 7
		}
		if !obj.LastModified.IsZero() {
			n += 7
		}
	}
	return n
}
