package content

import "errors"

// Standard content store errors. Backends wrap them with the offending
// ContentID:
//
//	return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
//
// and callers test with errors.Is.
var (
	// ErrContentNotFound indicates the requested content does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidOffset indicates a negative or otherwise unusable offset.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrInvalidContentID indicates a ContentID that does not name an
	// object.
	ErrInvalidContentID = errors.New("invalid content ID")

	// ErrTooLarge indicates the content would exceed a backend limit.
	ErrTooLarge = errors.New("content too large")

	// ErrUnavailable indicates the backend cannot currently be reached.
	ErrUnavailable = errors.New("storage unavailable")
)
