package ots

import (
	"fmt"
	"time"
)

// DateTime is the 7-byte calendar time used for the First-Created and
// Last-Modified characteristics and the date range filters.
//
// The all-zero value means "unset". No time zone is carried; the server
// records times in UTC.
type DateTime struct {
	Year    uint16 `cbor:"1,keyasint"`
	Month   uint8  `cbor:"2,keyasint"`
	Day     uint8  `cbor:"3,keyasint"`
	Hours   uint8  `cbor:"4,keyasint"`
	Minutes uint8  `cbor:"5,keyasint"`
	Seconds uint8  `cbor:"6,keyasint"`
}

// FromTime converts t (in UTC) to a DateTime.
func FromTime(t time.Time) DateTime {
	t = t.UTC()
	return DateTime{
		Year:    uint16(t.Year()),
		Month:   uint8(t.Month()),
		Day:     uint8(t.Day()),
		Hours:   uint8(t.Hour()),
		Minutes: uint8(t.Minute()),
		Seconds: uint8(t.Second()),
	}
}

// IsZero reports whether the timestamp is unset.
func (d DateTime) IsZero() bool {
	return d == DateTime{}
}

// Valid checks the field ranges allowed on the wire. Zero fields mean
// "unknown" and are accepted.
func (d DateTime) Valid() bool {
	if d.Year != 0 && (d.Year < 1582 || d.Year > 9999) {
		return false
	}
	return d.Month <= 12 && d.Day <= 31 && d.Hours <= 23 && d.Minutes <= 59 && d.Seconds <= 59
}

// Compare orders timestamps field by field, most significant first.
func (d DateTime) Compare(o DateTime) int {
	a := [...]int{int(d.Year), int(d.Month), int(d.Day), int(d.Hours), int(d.Minutes), int(d.Seconds)}
	b := [...]int{int(o.Year), int(o.Month), int(o.Day), int(o.Hours), int(o.Minutes), int(o.Seconds)}
	for i := range a {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

// Time converts the timestamp to a time.Time in UTC. Unset timestamps
// return the zero time.
func (d DateTime) Time() time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day),
		int(d.Hours), int(d.Minutes), int(d.Seconds), 0, time.UTC)
}

func (d DateTime) String() string {
	if d.IsZero() {
		return "unset"
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		d.Year, d.Month, d.Day, d.Hours, d.Minutes, d.Seconds)
}
