package pipeline

import "errors"

var (
	// ErrNotLinked indicates Run was called before Negotiate succeeded.
	ErrNotLinked = errors.New("pipeline not negotiated")

	// ErrSurfaceTransform indicates a GPU surface frame reached a CPU
	// transform. Surface output can only feed the sink directly.
	ErrSurfaceTransform = errors.New("surface frames cannot pass CPU transforms")

	// ErrAlreadyRunning indicates a second concurrent Run.
	ErrAlreadyRunning = errors.New("pipeline already running")
)
