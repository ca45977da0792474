package store

import (
	"errors"

	"github.com/marmos91/dittoots/pkg/ots"
)

// Error represents a domain error from object store operations.
//
// These are business logic errors (object not found, store full, etc.).
// The procedure engines translate Error codes into OACP/OLCP result codes
// or ATT error codes.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// ID is the object the error relates to (if any)
	ID ots.ObjectID

	hasID bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.hasID {
		return e.Message + ": " + e.ID.String()
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates no live object carries the requested ID
	ErrNotFound ErrorCode = iota

	// ErrCapacity indicates the table is full or the ID space is exhausted
	ErrCapacity

	// ErrLocked indicates the object is owned by an in-flight procedure
	ErrLocked

	// ErrReserved indicates the operation is not allowed on the directory
	// listing object
	ErrReserved

	// ErrNameExists indicates another object already uses the name
	ErrNameExists

	// ErrInvalidName indicates the name is too long or not valid UTF-8
	ErrInvalidName

	// ErrDuplicateID indicates a restored object collides with a live one
	ErrDuplicateID
)

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func newObjectError(code ErrorCode, msg string, id ots.ObjectID) *Error {
	return &Error{Code: code, Message: msg, ID: id, hasID: true}
}

// CodeOf extracts the ErrorCode from err. ok is false when err is not a
// store error.
func CodeOf(err error) (code ErrorCode, ok bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsNotFound reports whether err is an ErrNotFound store error.
func IsNotFound(err error) bool { return hasCode(err, ErrNotFound) }

// IsCapacity reports whether err is an ErrCapacity store error.
func IsCapacity(err error) bool { return hasCode(err, ErrCapacity) }

// IsLocked reports whether err is an ErrLocked store error.
func IsLocked(err error) bool { return hasCode(err, ErrLocked) }

// IsReserved reports whether err is an ErrReserved store error.
func IsReserved(err error) bool { return hasCode(err, ErrReserved) }

// IsNameExists reports whether err is an ErrNameExists store error.
func IsNameExists(err error) bool { return hasCode(err, ErrNameExists) }

// IsInvalidName reports whether err is an ErrInvalidName store error.
func IsInvalidName(err error) bool { return hasCode(err, ErrInvalidName) }
