package framegen

import (
	"errors"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/gpu"
	"github.com/opd-ai/framegen/video"
)

// State errors. They are recoverable: the caller retries after configuring
// or starting the stage.
var (
	// ErrNotNegotiated indicates a frame operation before SetCaps or SetFormat.
	ErrNotNegotiated = errors.New("stage not negotiated")

	// ErrNotReady indicates a GPU source produced before Start.
	ErrNotReady = errors.New("stage not ready")

	// ErrInvalidState indicates an operation the current lifecycle state
	// does not allow, such as configuring a stopped stage.
	ErrInvalidState = errors.New("invalid stage state")

	// ErrCapabilityNotDeclared indicates a host call a stage did not declare.
	ErrCapabilityNotDeclared = errors.New("capability not declared")
)

// Errors from the subpackages, re-exported so hosts need only this package.
var (
	ErrNoCommonFormat    = format.ErrNoCommonFormat
	ErrInvalidFormat     = format.ErrInvalidFormat
	ErrUnsupportedFormat = video.ErrUnsupportedFormat
	ErrResourceExhausted = gpu.ErrResourceExhausted
	ErrWorkerFault       = gpu.ErrWorkerFault
	ErrWorkerStopped     = gpu.ErrWorkerStopped
)

// ErrorKind is the class of a stage error.
type ErrorKind int

const (
	// KindNone is the kind of a nil error.
	KindNone ErrorKind = iota
	// KindNegotiation means no common format; the host may pick another link.
	KindNegotiation
	// KindResourceExhausted means a device allocation failed. Terminal.
	KindResourceExhausted
	// KindState means the stage was not ready for the call.
	KindState
	// KindUnsupportedFormat means a frame reached the transform in a format
	// it cannot convert. The operation failed; the stream may continue.
	KindUnsupportedFormat
	// KindWorkerFault means the render worker failed. Terminal.
	KindWorkerFault
	// KindOther is anything else, including context cancellation.
	KindOther
)

// String returns a human-readable representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNegotiation:
		return "negotiation"
	case KindResourceExhausted:
		return "resource-exhausted"
	case KindState:
		return "state"
	case KindUnsupportedFormat:
		return "unsupported-format"
	case KindWorkerFault:
		return "worker-fault"
	default:
		return "other"
	}
}

// Classify maps err onto the error taxonomy. A worker fault caused by an
// allocation failure classifies as a worker fault.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, gpu.ErrWorkerFault):
		return KindWorkerFault
	case errors.Is(err, gpu.ErrResourceExhausted):
		return KindResourceExhausted
	case errors.Is(err, video.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, format.ErrNoCommonFormat), errors.Is(err, format.ErrInvalidFormat):
		return KindNegotiation
	case errors.Is(err, ErrNotNegotiated),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrCapabilityNotDeclared),
		errors.Is(err, gpu.ErrWorkerStopped),
		errors.Is(err, gpu.ErrSurfaceCheckedOut):
		return KindState
	default:
		return KindOther
	}
}

// IsTerminal reports whether err ends the stream. Nothing in this module
// retries; terminal errors go to the host, which rebuilds the stream.
func IsTerminal(err error) bool {
	switch Classify(err) {
	case KindWorkerFault, KindResourceExhausted:
		return true
	default:
		return false
	}
}
