// Package filter implements the list filter predicates applied by filtered
// views. A Filter is a plain value: it owns its name buffer, carries only
// the parameters its type needs, and can be validated and matched without
// any reference to the view that holds it.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
)

// ErrInvalidFilter is returned when a filter's parameters are inconsistent.
// The engine maps it to the ATT "write request rejected" error.
var ErrInvalidFilter = errors.New("invalid list filter")

// Filter is one list filter slot value.
type Filter struct {
	// Type selects the predicate
	Type ots.FilterType

	// Name is the operand of the four name predicates
	Name string

	// ObjectType is the operand of FilterObjectType
	ObjectType ots.ObjectType

	// From and To bound the created/modified date ranges (inclusive)
	From ots.DateTime
	To   ots.DateTime

	// Min and Max bound the size ranges (inclusive)
	Min uint32
	Max uint32
}

// None returns the "no filter" value.
func None() Filter {
	return Filter{Type: ots.FilterNone}
}

// NameStartsWith returns a case-insensitive prefix filter.
func NameStartsWith(name string) Filter {
	return Filter{Type: ots.FilterNameStartsWith, Name: name}
}

// NameEndsWith returns a case-insensitive suffix filter.
func NameEndsWith(name string) Filter {
	return Filter{Type: ots.FilterNameEndsWith, Name: name}
}

// NameContains returns a case-insensitive substring filter.
func NameContains(name string) Filter {
	return Filter{Type: ots.FilterNameContains, Name: name}
}

// NameIsExactly returns a case-insensitive equality filter.
func NameIsExactly(name string) Filter {
	return Filter{Type: ots.FilterNameIsExactly, Name: name}
}

// TypeEquals returns an object type filter.
func TypeEquals(t ots.ObjectType) Filter {
	return Filter{Type: ots.FilterObjectType, ObjectType: t}
}

// CreatedBetween returns an inclusive first-created range filter.
func CreatedBetween(from, to ots.DateTime) Filter {
	return Filter{Type: ots.FilterCreatedBetween, From: from, To: to}
}

// ModifiedBetween returns an inclusive last-modified range filter.
func ModifiedBetween(from, to ots.DateTime) Filter {
	return Filter{Type: ots.FilterModifiedBetween, From: from, To: to}
}

// CurrentSizeBetween returns an inclusive current size range filter.
func CurrentSizeBetween(min, max uint32) Filter {
	return Filter{Type: ots.FilterCurrentSizeBetween, Min: min, Max: max}
}

// AllocatedSizeBetween returns an inclusive allocated size range filter.
func AllocatedSizeBetween(min, max uint32) Filter {
	return Filter{Type: ots.FilterAllocatedSizeBetween, Min: min, Max: max}
}

// Marked returns the marked-objects filter.
func Marked() Filter {
	return Filter{Type: ots.FilterMarkedObjects}
}

// IsNone reports whether the slot is empty.
func (f Filter) IsNone() bool {
	return f.Type == ots.FilterNone
}

// Validate checks the parameters for the filter's type.
func (f Filter) Validate() error {
	switch {
	case !f.Type.Valid():
		return fmt.Errorf("%w: unknown type 0x%02X", ErrInvalidFilter, uint8(f.Type))

	case f.Type.IsName():
		if len(f.Name) > ots.MaxNameLength {
			return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidFilter, ots.MaxNameLength)
		}
		if !utf8.ValidString(f.Name) {
			return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidFilter)
		}

	case f.Type == ots.FilterObjectType:
		if f.ObjectType.IsZero() {
			return fmt.Errorf("%w: missing object type", ErrInvalidFilter)
		}

	case f.Type == ots.FilterCreatedBetween || f.Type == ots.FilterModifiedBetween:
		if !f.From.Valid() || !f.To.Valid() {
			return fmt.Errorf("%w: invalid date", ErrInvalidFilter)
		}
		if f.From.Compare(f.To) > 0 {
			return fmt.Errorf("%w: lower date bound after upper bound", ErrInvalidFilter)
		}

	case f.Type == ots.FilterCurrentSizeBetween || f.Type == ots.FilterAllocatedSizeBetween:
		if f.Min > f.Max {
			return fmt.Errorf("%w: minimum size greater than maximum", ErrInvalidFilter)
		}
	}
	return nil
}

// Match reports whether obj satisfies the predicate. An empty slot matches
// everything.
func (f Filter) Match(obj *store.Object) bool {
	switch f.Type {
	case ots.FilterNone:
		return true
	case ots.FilterNameStartsWith:
		return hasPrefixFold(obj.Name, f.Name)
	case ots.FilterNameEndsWith:
		return hasSuffixFold(obj.Name, f.Name)
	case ots.FilterNameContains:
		return strings.Contains(strings.ToLower(obj.Name), strings.ToLower(f.Name))
	case ots.FilterNameIsExactly:
		return len(obj.Name) == len(f.Name) && strings.EqualFold(obj.Name, f.Name)
	case ots.FilterObjectType:
		return obj.Type.Equal(f.ObjectType)
	case ots.FilterCreatedBetween:
		return inDateRange(obj.FirstCreated, f.From, f.To)
	case ots.FilterModifiedBetween:
		return inDateRange(obj.LastModified, f.From, f.To)
	case ots.FilterCurrentSizeBetween:
		return obj.CurrentSize >= f.Min && obj.CurrentSize <= f.Max
	case ots.FilterAllocatedSizeBetween:
		return obj.AllocatedSize >= f.Min && obj.AllocatedSize <= f.Max
	case ots.FilterMarkedObjects:
		return obj.Marked
	default:
		return false
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// hasSuffixFold compares the trailing len(suffix) bytes of s.
func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

func inDateRange(d, from, to ots.DateTime) bool {
	return d.Compare(from) >= 0 && d.Compare(to) <= 0
}

// MatchAll reports whether obj satisfies every filter (logical AND).
func MatchAll(filters []Filter, obj *store.Object) bool {
	for _, f := range filters {
		if !f.Match(obj) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	switch {
	case f.Type.IsName():
		return fmt.Sprintf("%s(%q)", f.Type, f.Name)
	case f.Type == ots.FilterObjectType:
		return fmt.Sprintf("%s(%s)", f.Type, f.ObjectType)
	case f.Type == ots.FilterCreatedBetween || f.Type == ots.FilterModifiedBetween:
		return fmt.Sprintf("%s(%s..%s)", f.Type, f.From, f.To)
	case f.Type == ots.FilterCurrentSizeBetween || f.Type == ots.FilterAllocatedSizeBetween:
		return fmt.Sprintf("%s(%d..%d)", f.Type, f.Min, f.Max)
	default:
		return f.Type.String()
	}
}
