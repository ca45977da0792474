package codec

import (
	"errors"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/filter"
)

// Request is a decoded attribute write. The concrete type is one of
// OACPRequest, OLCPRequest, MetadataWrite, FilterWrite or CCCDWrite.
type Request interface {
	// Handle is the attribute-handle type the write targeted.
	Handle() ots.HandleType
}

// MetadataWrite is a write to one of the writable metadata
// characteristics. Only the field matching Target is set.
type MetadataWrite struct {
	Target     ots.HandleType
	Name       string
	DateTime   ots.DateTime
	Properties ots.Properties
}

// FilterWrite is a write to a List Filter characteristic.
type FilterWrite struct {
	Slot   int
	Filter filter.Filter
}

// CCCDWrite is a write to a client characteristic configuration
// descriptor.
type CCCDWrite struct {
	Target ots.HandleType
	Value  uint16
}

func (OACPRequest) Handle() ots.HandleType { return ots.HandleOACP }

func (OLCPRequest) Handle() ots.HandleType { return ots.HandleOLCP }

func (m MetadataWrite) Handle() ots.HandleType { return m.Target }

func (f FilterWrite) Handle() ots.HandleType { return ots.FilterHandle(f.Slot) }

func (c CCCDWrite) Handle() ots.HandleType { return c.Target }

// ErrNotWritable is returned by Decode for characteristics that do not
// accept writes.
var ErrNotWritable = errors.New("attribute is not writable")

// Decode turns the payload of an attribute write into a typed request.
func Decode(h ots.HandleType, payload []byte) (Request, error) {
	switch h {
	case ots.HandleOACP:
		req, err := DecodeOACPRequest(payload)
		if err != nil {
			return nil, err
		}
		return req, nil

	case ots.HandleOLCP:
		req, err := DecodeOLCPRequest(payload)
		if err != nil {
			return nil, err
		}
		return req, nil

	case ots.HandleObjectName:
		name, err := DecodeName(payload)
		if err != nil {
			return nil, err
		}
		return MetadataWrite{Target: h, Name: name}, nil

	case ots.HandleFirstCreated, ots.HandleLastModified:
		dt, err := DecodeDateTime(payload)
		if err != nil {
			return nil, err
		}
		return MetadataWrite{Target: h, DateTime: dt}, nil

	case ots.HandleObjectProperties:
		props, err := DecodeProperties(payload)
		if err != nil {
			return nil, err
		}
		return MetadataWrite{Target: h, Properties: props}, nil

	case ots.HandleListFilter1, ots.HandleListFilter2, ots.HandleListFilter3:
		slot, _ := h.FilterSlot()
		f, err := DecodeFilter(payload)
		if err != nil {
			return nil, err
		}
		return FilterWrite{Slot: slot, Filter: f}, nil

	case ots.HandleOACPCCCD, ots.HandleOLCPCCCD, ots.HandleObjectChangedCCCD:
		v, err := DecodeCCCD(payload)
		if err != nil {
			return nil, err
		}
		return CCCDWrite{Target: h, Value: v}, nil

	default:
		return nil, ErrNotWritable
	}
}
