package codec

import (
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/filter"
)

// EncodeFilter encodes a List Filter characteristic value.
func EncodeFilter(f filter.Filter) []byte {
	b := []byte{byte(f.Type)}
	switch {
	case f.Type.IsName():
		b = append(b, f.Name...)
	case f.Type == ots.FilterObjectType:
		b = appendType(b, f.ObjectType)
	case f.Type == ots.FilterCreatedBetween || f.Type == ots.FilterModifiedBetween:
		b = appendDateTime(b, f.From)
		b = appendDateTime(b, f.To)
	case f.Type == ots.FilterCurrentSizeBetween || f.Type == ots.FilterAllocatedSizeBetween:
		b = appendUint32(b, f.Min)
		b = appendUint32(b, f.Max)
	}
	return b
}

// DecodeFilter decodes a List Filter characteristic value. Only the layout
// is checked here; semantic validation (ranges, lengths) belongs to
// filter.Validate.
func DecodeFilter(b []byte) (filter.Filter, error) {
	if len(b) == 0 {
		return filter.Filter{}, malformed("empty list filter")
	}

	r := newReader(b)
	f := filter.Filter{Type: ots.FilterType(r.u8())}

	switch {
	case !f.Type.Valid():
		return filter.Filter{}, malformed("unknown filter type 0x%02X", uint8(f.Type))
	case f.Type.IsName():
		f.Name = string(r.take(r.remaining()))
	case f.Type == ots.FilterObjectType:
		f.ObjectType = r.objectType(r.remaining())
	case f.Type == ots.FilterCreatedBetween || f.Type == ots.FilterModifiedBetween:
		f.From = r.dateTime()
		f.To = r.dateTime()
	case f.Type == ots.FilterCurrentSizeBetween || f.Type == ots.FilterAllocatedSizeBetween:
		f.Min = r.u32()
		f.Max = r.u32()
	}

	if err := r.done(); err != nil {
		return filter.Filter{}, err
	}
	return f, nil
}
