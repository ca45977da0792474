// Package codec encodes and decodes every OTS attribute value: object
// metadata fields, OACP and OLCP requests and responses, list filter
// payloads, Object Changed indications and the directory listing blob.
//
// All multi-byte integers are little-endian and packed. Decoders never
// panic on short or oversized input; they return ErrMalformed.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/marmos91/dittoots/pkg/ots"
)

// ErrMalformed is returned when a payload does not have the expected
// layout.
var ErrMalformed = errors.New("malformed payload")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// ============================================================================
// Primitive encoders
// ============================================================================

func appendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendUint48(b []byte, v ots.ObjectID) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(v))
	return binary.LittleEndian.AppendUint16(b, uint16(v>>32))
}

func appendDateTime(b []byte, d ots.DateTime) []byte {
	b = appendUint16(b, d.Year)
	return append(b, d.Month, d.Day, d.Hours, d.Minutes, d.Seconds)
}

// appendType writes a 16-bit tag as 2 bytes and every other width as the
// 16-byte little-endian UUID.
func appendType(b []byte, t ots.ObjectType) []byte {
	if v, ok := t.WireUUID16(); ok {
		return appendUint16(b, v)
	}
	for i := len(t.UUID) - 1; i >= 0; i-- {
		b = append(b, t.UUID[i])
	}
	return b
}

// typeWireLen is the number of bytes appendType writes for t.
func typeWireLen(t ots.ObjectType) int {
	if t.Width == ots.TypeWidth16 {
		return 2
	}
	return 16
}

// ============================================================================
// Reader
// ============================================================================

// reader walks a payload, remembering the first short read.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.err = malformed("need %d bytes at offset %d, have %d", n, r.off, r.remaining())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u48() ots.ObjectID {
	b := r.take(6)
	if b == nil {
		return 0
	}
	lo := uint64(binary.LittleEndian.Uint32(b[0:4]))
	hi := uint64(binary.LittleEndian.Uint16(b[4:6]))
	return ots.ObjectID(hi<<32 | lo)
}

func (r *reader) dateTime() ots.DateTime {
	b := r.take(7)
	if b == nil {
		return ots.DateTime{}
	}
	return ots.DateTime{
		Year:    binary.LittleEndian.Uint16(b[0:2]),
		Month:   b[2],
		Day:     b[3],
		Hours:   b[4],
		Minutes: b[5],
		Seconds: b[6],
	}
}

// objectType reads a 2- or 16-byte tag.
func (r *reader) objectType(n int) ots.ObjectType {
	switch n {
	case 2:
		return ots.Type16(r.u16())
	case 16:
		b := r.take(16)
		if b == nil {
			return ots.ObjectType{}
		}
		var u uuid.UUID
		for i := range u {
			u[i] = b[15-i]
		}
		return ots.FromWire128(u)
	default:
		if r.err == nil {
			r.err = malformed("object type must be 2 or 16 bytes, got %d", n)
		}
		return ots.ObjectType{}
	}
}

// done fails if bytes are left over.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.remaining() != 0 {
		return malformed("%d trailing bytes", r.remaining())
	}
	return nil
}
