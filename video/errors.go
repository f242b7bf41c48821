package video

import "errors"

// Transform errors.
var (
	// ErrUnsupportedFormat indicates a pixel format without a defined
	// conversion. It aborts the current operation.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrGeometryMismatch indicates input and output frames of different sizes.
	ErrGeometryMismatch = errors.New("frame geometry mismatch")

	// ErrShortBuffer indicates a plane buffer smaller than its geometry requires.
	ErrShortBuffer = errors.New("buffer too small for geometry")
)

// Frame errors.
var (
	// ErrNilFrame indicates a nil frame was passed where one is required.
	ErrNilFrame = errors.New("video frame cannot be nil")
)
