package codec

import (
	"unicode/utf8"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
)

// EncodeFeatures encodes the OTS Feature characteristic.
func EncodeFeatures(f ots.Features) []byte {
	b := make([]byte, 0, 8)
	b = appendUint32(b, uint32(f.OACP))
	return appendUint32(b, uint32(f.OLCP))
}

// DecodeFeatures decodes the OTS Feature characteristic.
func DecodeFeatures(b []byte) (ots.Features, error) {
	r := newReader(b)
	f := ots.Features{OACP: ots.OACPFeatures(r.u32()), OLCP: ots.OLCPFeatures(r.u32())}
	return f, r.done()
}

// EncodeName encodes an object name (raw UTF-8, no terminator).
func EncodeName(name string) []byte {
	return []byte(name)
}

// DecodeName validates and decodes an object name.
func DecodeName(b []byte) (string, error) {
	if len(b) > ots.MaxNameLength {
		return "", malformed("name longer than %d bytes", ots.MaxNameLength)
	}
	if !utf8.Valid(b) {
		return "", malformed("name is not valid UTF-8")
	}
	return string(b), nil
}

// EncodeType encodes an object type tag.
func EncodeType(t ots.ObjectType) []byte {
	return appendType(nil, t)
}

// DecodeType decodes a 2- or 16-byte object type tag.
func DecodeType(b []byte) (ots.ObjectType, error) {
	r := newReader(b)
	t := r.objectType(len(b))
	return t, r.done()
}

// Size is the Object Size characteristic value.
type Size struct {
	Current   uint32
	Allocated uint32
}

// EncodeSize encodes the Object Size characteristic.
func EncodeSize(s Size) []byte {
	b := make([]byte, 0, 8)
	b = appendUint32(b, s.Current)
	return appendUint32(b, s.Allocated)
}

// DecodeSize decodes the Object Size characteristic.
func DecodeSize(b []byte) (Size, error) {
	r := newReader(b)
	s := Size{Current: r.u32(), Allocated: r.u32()}
	return s, r.done()
}

// EncodeDateTime encodes a 7-byte date-time.
func EncodeDateTime(d ots.DateTime) []byte {
	return appendDateTime(make([]byte, 0, 7), d)
}

// DecodeDateTime decodes and range-checks a 7-byte date-time.
func DecodeDateTime(b []byte) (ots.DateTime, error) {
	r := newReader(b)
	d := r.dateTime()
	if err := r.done(); err != nil {
		return ots.DateTime{}, err
	}
	if !d.Valid() {
		return ots.DateTime{}, malformed("date-time out of range: %s", d)
	}
	return d, nil
}

// EncodeID encodes a 48-bit object ID.
func EncodeID(id ots.ObjectID) []byte {
	return appendUint48(make([]byte, 0, 6), id)
}

// DecodeID decodes a 48-bit object ID.
func DecodeID(b []byte) (ots.ObjectID, error) {
	r := newReader(b)
	id := r.u48()
	return id, r.done()
}

// EncodeProperties encodes the Object Properties characteristic.
func EncodeProperties(p ots.Properties) []byte {
	return appendUint32(make([]byte, 0, 4), uint32(p))
}

// DecodeProperties decodes the Object Properties characteristic.
func DecodeProperties(b []byte) (ots.Properties, error) {
	r := newReader(b)
	p := ots.Properties(r.u32())
	return p, r.done()
}

// EncodeMetadata encodes the characteristic addressed by h for obj.
// ok is false when h is not an object metadata characteristic.
func EncodeMetadata(h ots.HandleType, obj *store.Object) (value []byte, ok bool) {
	switch h {
	case ots.HandleObjectName:
		return EncodeName(obj.Name), true
	case ots.HandleObjectType:
		return EncodeType(obj.Type), true
	case ots.HandleObjectSize:
		return EncodeSize(Size{Current: obj.CurrentSize, Allocated: obj.AllocatedSize}), true
	case ots.HandleFirstCreated:
		return EncodeDateTime(obj.FirstCreated), true
	case ots.HandleLastModified:
		return EncodeDateTime(obj.LastModified), true
	case ots.HandleObjectID:
		return EncodeID(obj.ID), true
	case ots.HandleObjectProperties:
		return EncodeProperties(obj.Properties), true
	default:
		return nil, false
	}
}

// DecodeMetadata applies the characteristic value b for h to obj. It is the
// inverse of EncodeMetadata and is used by the client to fill its cache.
func DecodeMetadata(h ots.HandleType, b []byte, obj *store.Object) error {
	var err error
	switch h {
	case ots.HandleObjectName:
		obj.Name, err = DecodeName(b)
	case ots.HandleObjectType:
		obj.Type, err = DecodeType(b)
	case ots.HandleObjectSize:
		var s Size
		if s, err = DecodeSize(b); err == nil {
			obj.CurrentSize, obj.AllocatedSize = s.Current, s.Allocated
		}
	case ots.HandleFirstCreated:
		obj.FirstCreated, err = DecodeDateTime(b)
	case ots.HandleLastModified:
		obj.LastModified, err = DecodeDateTime(b)
	case ots.HandleObjectID:
		obj.ID, err = DecodeID(b)
	case ots.HandleObjectProperties:
		obj.Properties, err = DecodeProperties(b)
	default:
		err = malformed("%s is not an object metadata characteristic", h)
	}
	return err
}

// MetadataHandles lists the per-object characteristics in the order the
// client reads them.
var MetadataHandles = []ots.HandleType{
	ots.HandleObjectName,
	ots.HandleObjectType,
	ots.HandleObjectSize,
	ots.HandleFirstCreated,
	ots.HandleLastModified,
	ots.HandleObjectID,
	ots.HandleObjectProperties,
}
