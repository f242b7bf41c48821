package framegen

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/video"
)

// TransformOptions configures a TransformStage.
type TransformOptions struct {
	// Strict restricts negotiation to formats the transform can output and
	// rejects any other output format at SetCaps.
	Strict bool
	// RowAlign is the row alignment of output frames; 0 means
	// format.DefaultRowAlign.
	RowAlign int
	// Pool supplies output buffers; nil creates a private pool.
	Pool *video.Pool
	// Effects run after the remap, in order. They must keep the BGRx
	// output format.
	Effects []video.Effect
}

// TransformStage converts raw frames into tone-remapped BGRx frames. It
// negotiates like a filter placed between a raw source and a sink that only
// takes the canonical packed format.
type TransformStage struct {
	name       string
	opts       TransformOptions
	negotiator *format.Negotiator
	effect     video.Effect
	pool       *video.Pool

	lifecycle
	signals

	frames atomic.Uint64
}

// NewTransformStage creates a transform stage.
func NewTransformStage(name string, opts TransformOptions) *TransformStage {
	if opts.RowAlign <= 0 {
		opts.RowAlign = format.DefaultRowAlign
	}
	if opts.Pool == nil {
		opts.Pool = video.NewPool()
	}

	negotiator := format.NewNegotiator()
	negotiator.Strict = opts.Strict

	var effect video.Effect = video.NewRemapEffect()
	if len(opts.Effects) > 0 {
		chain := video.NewEffectChain(opts.Pool)
		chain.AddEffect(effect)
		for _, e := range opts.Effects {
			chain.AddEffect(e)
		}
		effect = chain
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewTransformStage",
		"stage":    name,
		"strict":   opts.Strict,
		"effects":  len(opts.Effects),
	}).Debug("Transform stage created")

	return &TransformStage{
		name:       name,
		opts:       opts,
		negotiator: negotiator,
		effect:     effect,
		pool:       opts.Pool,
	}
}

// Name returns the stage name.
func (t *TransformStage) Name() string { return t.name }

// Capabilities returns negotiate, configure and transform.
func (t *TransformStage) Capabilities() Capability {
	return CapNegotiate | CapConfigure | CapTransform
}

// TransformCaps proposes the caps acceptable on the opposite side of dir.
func (t *TransformStage) TransformCaps(dir format.Direction, caps, filter format.Set) format.Set {
	return t.negotiator.ProposeAcceptable(dir, caps, filter)
}

// SetCaps fixes the input and output formats. Calling it while streaming
// renegotiates.
func (t *TransformStage) SetCaps(in, out format.Descriptor) error {
	inGeo, err := format.Validate(in)
	if err != nil {
		return t.fail(t.name, fmt.Errorf("input caps: %w", err))
	}
	outGeo, err := format.ValidateAligned(out, t.opts.RowAlign)
	if err != nil {
		return t.fail(t.name, fmt.Errorf("output caps: %w", err))
	}
	if !in.SameSize(out) {
		return t.fail(t.name, fmt.Errorf("%w: input %dx%d and output %dx%d differ",
			format.ErrInvalidFormat, in.Width, in.Height, out.Width, out.Height))
	}
	if t.opts.Strict && !t.outputs(out.Format) {
		return t.fail(t.name, fmt.Errorf("%w: no conversion to %s", video.ErrUnsupportedFormat, out.Format))
	}

	prev, err := t.configure(inGeo, outGeo)
	if err != nil {
		return t.fail(t.name, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "TransformStage.SetCaps",
		"stage":         t.name,
		"in":            in.String(),
		"out":           out.String(),
		"renegotiation": prev == StateStreaming,
	}).Info("Transform caps set")

	return nil
}

func (t *TransformStage) outputs(f format.PixelFormat) bool {
	for _, o := range t.negotiator.Outputs {
		if o == f {
			return true
		}
	}
	return false
}

// UnitSize returns the byte size of one frame of d at this stage's row
// alignment.
func (t *TransformStage) UnitSize(d format.Descriptor) (int, error) {
	geo, err := format.ValidateAligned(d, t.opts.RowAlign)
	if err != nil {
		return 0, err
	}
	return geo.Size, nil
}

// Consume transforms frame into a new output frame. The output borrows a
// pooled buffer; release it when done. The input frame is not released.
func (t *TransformStage) Consume(ctx context.Context, frame *video.Frame) (*video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	neg, err := t.negotiated()
	if err != nil {
		return nil, t.fail(t.name, err)
	}
	if frame == nil {
		return nil, t.fail(t.name, video.ErrNilFrame)
	}
	if frame.Geometry.Format != neg.in.Format {
		return nil, t.fail(t.name, fmt.Errorf("%w: frame format %s, negotiated %s", video.ErrGeometryMismatch,
			frame.Geometry.Format, neg.in.Format))
	}
	if !frame.Geometry.SameSize(neg.in.Descriptor) {
		return nil, t.fail(t.name, fmt.Errorf("%w: frame %dx%d, negotiated %dx%d", video.ErrGeometryMismatch,
			frame.Geometry.Width, frame.Geometry.Height, neg.in.Width, neg.in.Height))
	}

	out := t.pool.Get(neg.out)
	if err := t.effect.Apply(out, frame); err != nil {
		_ = out.Release()
		return nil, t.fail(t.name, err)
	}

	n := t.frames.Add(1)
	if t.streaming() {
		logrus.WithFields(logrus.Fields{
			"function": "TransformStage.Consume",
			"stage":    t.name,
		}).Info("Transform stage streaming")
	}
	logrus.WithFields(logrus.Fields{
		"function": "TransformStage.Consume",
		"stage":    t.name,
		"seq":      out.Seq,
		"frames":   n,
	}).Trace("Frame transformed")

	t.frameReady(out)
	return out, nil
}

// Frames returns the number of frames transformed.
func (t *TransformStage) Frames() uint64 {
	return t.frames.Load()
}

// State returns the lifecycle state.
func (t *TransformStage) State() StreamState {
	return t.current()
}

// Stop releases the negotiation.
func (t *TransformStage) Stop(ctx context.Context) error {
	prev := t.stop()
	if prev != StateStopped {
		logrus.WithFields(logrus.Fields{
			"function": "TransformStage.Stop",
			"stage":    t.name,
			"frames":   t.frames.Load(),
		}).Info("Transform stage stopped")
	}
	return nil
}
