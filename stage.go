package framegen

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/video"
)

// Capability is a set of host operations a stage supports.
type Capability uint8

const (
	// CapNegotiate means the stage answers caps queries.
	CapNegotiate Capability = 1 << iota
	// CapConfigure means the stage accepts a fixed format.
	CapConfigure
	// CapTransform means the stage consumes frames and emits processed ones.
	CapTransform
	// CapProduce means the stage produces frames on demand.
	CapProduce
)

// Has reports whether c includes every bit of o.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

// String lists the capabilities joined by "|".
func (c Capability) String() string {
	names := []struct {
		cap  Capability
		name string
	}{
		{CapNegotiate, "negotiate"},
		{CapConfigure, "configure"},
		{CapTransform, "transform"},
		{CapProduce, "produce"},
	}
	var parts []string
	for _, n := range names {
		if c.Has(n.cap) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Stage is the part every pipeline element shares.
type Stage interface {
	Name() string
	Capabilities() Capability
	// Stop releases the stage. A stopped stage cannot be reconfigured.
	Stop(ctx context.Context) error
}

// Negotiator answers caps queries.
type Negotiator interface {
	Stage
	// TransformCaps returns what the stage accepts on the side opposite to
	// dir, given caps proposed on dir and an optional filter.
	TransformCaps(dir format.Direction, caps, filter format.Set) format.Set
}

// CapsSetter is configured with both sides of a link, like a transform.
type CapsSetter interface {
	Stage
	SetCaps(in, out format.Descriptor) error
}

// FormatSetter is configured with its output format, like a source.
type FormatSetter interface {
	Stage
	SetFormat(ctx context.Context, d format.Descriptor) error
}

// Transformer consumes a frame and returns the processed frame.
type Transformer interface {
	Stage
	Consume(ctx context.Context, frame *video.Frame) (*video.Frame, error)
}

// Producer produces frames. A nil frame with a nil error means no frame was
// ready this time.
type Producer interface {
	Stage
	Produce(ctx context.Context) (*video.Frame, error)
}

func undeclared(s Stage, c Capability) error {
	return fmt.Errorf("%w: stage %q does not declare %s", ErrCapabilityNotDeclared, s.Name(), c)
}

// Negotiate dispatches a caps query to s.
func Negotiate(s Stage, dir format.Direction, caps, filter format.Set) (format.Set, error) {
	n, ok := s.(Negotiator)
	if !ok || !s.Capabilities().Has(CapNegotiate) {
		return nil, undeclared(s, CapNegotiate)
	}
	return n.TransformCaps(dir, caps, filter), nil
}

// Configure fixes the format of s. Stages configured by both sides get in
// and out; stages configured by output only get out.
func Configure(ctx context.Context, s Stage, in, out format.Descriptor) error {
	if !s.Capabilities().Has(CapConfigure) {
		return undeclared(s, CapConfigure)
	}
	switch c := s.(type) {
	case CapsSetter:
		return c.SetCaps(in, out)
	case FormatSetter:
		return c.SetFormat(ctx, out)
	default:
		return undeclared(s, CapConfigure)
	}
}

// Consume passes frame through the transform stage s.
func Consume(ctx context.Context, s Stage, frame *video.Frame) (*video.Frame, error) {
	t, ok := s.(Transformer)
	if !ok || !s.Capabilities().Has(CapTransform) {
		return nil, undeclared(s, CapTransform)
	}
	return t.Consume(ctx, frame)
}

// Produce asks the source s for its next frame.
func Produce(ctx context.Context, s Stage) (*video.Frame, error) {
	p, ok := s.(Producer)
	if !ok || !s.Capabilities().Has(CapProduce) {
		return nil, undeclared(s, CapProduce)
	}
	return p.Produce(ctx)
}

// FrameReadyCallback receives every frame a stage completes. The frame stays
// owned by the caller of Produce or Consume.
type FrameReadyCallback func(frame *video.Frame)

// ErrorCallback receives every error a stage reports.
type ErrorCallback func(err error)

// signals holds a stage's callbacks.
type signals struct {
	mu      sync.RWMutex
	onFrame FrameReadyCallback
	onError ErrorCallback
}

// OnFrameReady sets the callback for completed frames.
func (s *signals) OnFrameReady(callback FrameReadyCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = callback
}

// OnError sets the callback for stage errors.
func (s *signals) OnError(callback ErrorCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = callback
}

func (s *signals) frameReady(frame *video.Frame) {
	s.mu.RLock()
	cb := s.onFrame
	s.mu.RUnlock()
	if cb != nil {
		cb(frame)
	}
}

// fail reports err through the error callback and returns it.
func (s *signals) fail(stage string, err error) error {
	fields := logrus.Fields{
		"function": "fail",
		"stage":    stage,
		"kind":     Classify(err).String(),
		"error":    err.Error(),
	}
	if IsTerminal(err) {
		logrus.WithFields(fields).Error("Stage failed")
	} else {
		logrus.WithFields(fields).Warn("Stage operation failed")
	}

	s.mu.RLock()
	cb := s.onError
	s.mu.RUnlock()
	if cb != nil {
		cb(err)
	}
	return err
}
