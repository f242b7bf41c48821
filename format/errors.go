package format

import "errors"

// Validation errors.
var (
	// ErrInvalidFormat indicates a descriptor that cannot describe a stream.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnknownPixelFormat indicates a pixel format tag this package does not know.
	ErrUnknownPixelFormat = errors.New("unknown pixel format")

	// ErrDimensionTooLarge indicates a width or height above MaxDimension.
	ErrDimensionTooLarge = errors.New("dimension too large")
)

// Negotiation errors.
var (
	// ErrNoCommonFormat indicates two sides share no acceptable format.
	// Negotiation itself reports this as an empty Set; callers that must fail
	// a link wrap it.
	ErrNoCommonFormat = errors.New("no common format")

	// ErrNotFixed indicates a structure could not be fixated into a descriptor.
	ErrNotFixed = errors.New("caps structure cannot be fixated")
)
