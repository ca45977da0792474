package ots

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TypeWidth is the size in bytes of an object type tag.
type TypeWidth uint8

const (
	TypeWidth16  TypeWidth = 2
	TypeWidth32  TypeWidth = 4
	TypeWidth128 TypeWidth = 16
)

// baseUUID is the Bluetooth base UUID 00000000-0000-1000-8000-00805F9B34FB.
// 16- and 32-bit type tags are aliases inside it.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// Well-known object types.
var (
	// DirectoryListingType is the type of the directory listing object.
	DirectoryListingType = Type16(0x2ACB)

	// UnspecifiedType is used for imported objects without a configured type.
	UnspecifiedType = Type16(0x2ACA)
)

// ObjectType is a 16-, 32- or 128-bit object type tag.
//
// Every tag is held as a full UUID so that ordering and comparison work the
// same for all widths; Width records how the tag was declared and therefore
// how it travels on the wire.
type ObjectType struct {
	Width TypeWidth `cbor:"1,keyasint"`
	UUID  uuid.UUID `cbor:"2,keyasint"`
}

// Type16 returns the object type for a 16-bit UUID alias.
func Type16(v uint16) ObjectType {
	return ObjectType{Width: TypeWidth16, UUID: shortUUID(uint32(v))}
}

// Type32 returns the object type for a 32-bit UUID alias. Values that fit in
// 16 bits are declared as 16-bit tags.
func Type32(v uint32) ObjectType {
	if v <= 0xFFFF {
		return Type16(uint16(v))
	}
	return ObjectType{Width: TypeWidth32, UUID: shortUUID(v)}
}

// Type128 returns the object type for a full UUID.
func Type128(u uuid.UUID) ObjectType {
	return ObjectType{Width: TypeWidth128, UUID: u}
}

func shortUUID(v uint32) uuid.UUID {
	u := baseUUID
	binary.BigEndian.PutUint32(u[0:4], v)
	return u
}

// IsZero reports whether the type has never been set.
func (t ObjectType) IsZero() bool {
	return t.Width == 0
}

// Short returns the 16/32-bit alias value when the tag is declared that way.
func (t ObjectType) Short() (uint32, bool) {
	if t.Width != TypeWidth16 && t.Width != TypeWidth32 {
		return 0, false
	}
	return binary.BigEndian.Uint32(t.UUID[0:4]), true
}

// Equal compares two tags byte for byte after checking they have the same
// declared width.
func (t ObjectType) Equal(o ObjectType) bool {
	return t.Width == o.Width && t.UUID == o.UUID
}

// Compare orders tags by UUID value, then by width.
func (t ObjectType) Compare(o ObjectType) int {
	if c := bytes.Compare(t.UUID[:], o.UUID[:]); c != 0 {
		return c
	}
	switch {
	case t.Width < o.Width:
		return -1
	case t.Width > o.Width:
		return 1
	}
	return 0
}

// WireUUID16 returns the 2-byte wire form for 16-bit tags.
func (t ObjectType) WireUUID16() (uint16, bool) {
	if t.Width != TypeWidth16 {
		return 0, false
	}
	v, _ := t.Short()
	return uint16(v), true
}

// FromWire128 converts a 128-bit UUID received on the wire into a type tag.
// A base-UUID alias whose value does not fit in 16 bits is recognised as a
// 32-bit tag; everything else stays 128-bit.
func FromWire128(u uuid.UUID) ObjectType {
	if bytes.Equal(u[4:], baseUUID[4:]) {
		if v := binary.BigEndian.Uint32(u[0:4]); v > 0xFFFF {
			return ObjectType{Width: TypeWidth32, UUID: u}
		}
	}
	return Type128(u)
}

// ParseObjectType parses "0x2ACA", "2ACA", "0x0001ABCD" or a canonical UUID.
func ParseObjectType(s string) (ObjectType, error) {
	s = strings.TrimSpace(s)
	if len(s) > 8 && strings.Contains(s, "-") {
		u, err := uuid.Parse(s)
		if err != nil {
			return ObjectType{}, fmt.Errorf("invalid object type %q: %w", s, err)
		}
		return Type128(u), nil
	}

	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if hex == "" || len(hex) > 8 {
		return ObjectType{}, fmt.Errorf("invalid object type %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return ObjectType{}, fmt.Errorf("invalid object type %q: %w", s, err)
	}
	if len(hex) <= 4 {
		return Type16(uint16(v)), nil
	}
	return Type32(uint32(v)), nil
}

func (t ObjectType) String() string {
	switch t.Width {
	case 0:
		return "unset"
	case TypeWidth16:
		v, _ := t.Short()
		return fmt.Sprintf("0x%04X", v)
	case TypeWidth32:
		v, _ := t.Short()
		return fmt.Sprintf("0x%08X", v)
	default:
		return t.UUID.String()
	}
}
