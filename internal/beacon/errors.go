package beacon

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity parsing and preload validation.
var (
	// ErrMalformedAdvertisement indicates a known frame header whose identity
	// window is shorter than the format requires or is not hex.
	ErrMalformedAdvertisement = errors.New("beacon: malformed advertisement")

	// ErrInvalidUUID indicates a preload row whose UUID is not 32 hex digits.
	ErrInvalidUUID = errors.New("beacon: invalid uuid")

	// ErrInvalidValue indicates a major/minor token that is not a number.
	ErrInvalidValue = errors.New("beacon: invalid value")

	// ErrOutOfRange indicates a major/minor value outside 0..65535.
	ErrOutOfRange = errors.New("beacon: value out of range")
)

// ValidationError reports the first invalid row of a preload block.
//
// Line is 1-based over the split view of the text (semicolons and line breaks
// both start a new row). Reason is the user-facing explanation.
type ValidationError struct {
	Line   int
	Reason string
	Err    error
}

// Error returns the line-scoped message shown to the user.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("Line %d: %s", e.Line, e.Reason)
}

// Unwrap returns the sentinel describing the failure kind.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// fieldError carries a user-facing reason alongside its sentinel so that
// Hex4 callers get errors.Is support and validation gets a clean message.
type fieldError struct {
	reason string
	err    error
}

func (e *fieldError) Error() string { return e.reason }

func (e *fieldError) Unwrap() error { return e.err }
