package framegen

import (
	"fmt"
	"sync"

	"github.com/opd-ai/framegen/format"
)

// StreamState is the lifecycle state of a stage.
type StreamState int

const (
	// StateUnconfigured has no negotiated format.
	StateUnconfigured StreamState = iota
	// StateConfigured has a format but has not completed a frame since.
	StateConfigured
	// StateStreaming has completed at least one frame.
	StateStreaming
	// StateStopped is final.
	StateStopped
)

// String returns a human-readable representation of the stream state.
func (s StreamState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// negotiation is either unconfigured or configured; nothing else.
type negotiation interface {
	isNegotiation()
}

type unconfigured struct{}

type configured struct {
	in  format.Geometry
	out format.Geometry
}

func (unconfigured) isNegotiation() {}
func (configured) isNegotiation()   {}

// lifecycle holds a stage's negotiation and stream state. The zero value is
// unconfigured. The lock is held only to swap values; frame processing works
// on the returned copy.
type lifecycle struct {
	mu    sync.Mutex
	state StreamState
	neg   negotiation
}

// configure installs a negotiation. Streaming re-enters Configured.
func (l *lifecycle) configure(in, out format.Geometry) (StreamState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state
	if prev == StateStopped {
		return prev, fmt.Errorf("%w: configure after stop", ErrInvalidState)
	}
	l.neg = configured{in: in, out: out}
	l.state = StateConfigured
	return prev, nil
}

// negotiated returns the current negotiation or why there is none.
func (l *lifecycle) negotiated() (configured, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateStopped {
		return configured{}, fmt.Errorf("%w: stage stopped", ErrInvalidState)
	}
	switch n := l.neg.(type) {
	case configured:
		return n, nil
	default:
		return configured{}, ErrNotNegotiated
	}
}

// streaming records a completed frame and reports whether it was the first
// since configuration.
func (l *lifecycle) streaming() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateConfigured {
		return false
	}
	l.state = StateStreaming
	return true
}

// stop releases the negotiation. It returns the state before the call.
func (l *lifecycle) stop() StreamState {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state
	l.state = StateStopped
	l.neg = unconfigured{}
	return prev
}

func (l *lifecycle) current() StreamState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
