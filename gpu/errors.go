package gpu

import "errors"

// Device errors.
var (
	// ErrResourceExhausted indicates the device could not allocate a context
	// or surface. It is terminal for the stream that hit it.
	ErrResourceExhausted = errors.New("gpu resources exhausted")

	// ErrContextReleased indicates a call on a context after Release.
	ErrContextReleased = errors.New("gpu context released")

	// ErrInvalidSurface indicates a surface handle the context does not own.
	ErrInvalidSurface = errors.New("invalid surface handle")

	// ErrNoRenderTarget indicates a draw or readback with nothing bound.
	ErrNoRenderTarget = errors.New("no render target bound")

	// ErrInvalidSize indicates a non-positive surface size.
	ErrInvalidSize = errors.New("invalid surface size")

	// ErrInvalidReadback indicates a readback buffer or geometry that does
	// not match the render target.
	ErrInvalidReadback = errors.New("invalid readback target")
)

// Swap chain errors.
var (
	// ErrSurfaceCheckedOut indicates an operation that cannot run while the
	// consumer holds a surface.
	ErrSurfaceCheckedOut = errors.New("surface checked out by consumer")

	// ErrNotCheckedOut indicates a recycled surface that is not the one
	// currently checked out, typically a stale handle from before a resize.
	ErrNotCheckedOut = errors.New("surface is not checked out")

	// ErrSwapChainDestroyed indicates use of a swap chain after Destroy.
	ErrSwapChainDestroyed = errors.New("swap chain destroyed")
)

// Worker errors.
var (
	// ErrWorkerFault indicates a device call failed inside the render worker.
	// The worker refuses every later request except Shutdown.
	ErrWorkerFault = errors.New("render worker fault")

	// ErrWorkerStopped indicates a request to a worker that has shut down.
	ErrWorkerStopped = errors.New("render worker stopped")

	// ErrStartupTimeout indicates the worker did not finish initializing in time.
	ErrStartupTimeout = errors.New("render worker startup timed out")
)
