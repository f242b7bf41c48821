package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/framegen"
	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/video"
)

// Sink receives every frame that leaves the last stage. The runner releases
// the frame after Sink returns; a non-nil error ends the run.
type Sink func(ctx context.Context, frame *video.Frame) error

// Starter is implemented by sources that own resources started separately
// from negotiation, such as a render worker.
type Starter interface {
	Start(ctx context.Context) error
}

// Options configures a Runner.
type Options struct {
	// Frames stops the run after this many delivered frames; 0 runs until
	// the context is done.
	Frames uint64
	// QueueDepth is the number of produced frames that may wait for the
	// consumer; 0 means 1.
	QueueDepth int
	// SinkCaps restricts the format of the last link. Nil means the
	// canonical packed format at the negotiated size and rate.
	SinkCaps format.Set
}

// Stats counts frames moved by a Runner.
type Stats struct {
	Produced  uint64
	Delivered uint64
	// Skipped counts polls where the source had no frame ready.
	Skipped uint64
}

// Runner drives a source, its transforms and a sink.
type Runner struct {
	id         uuid.UUID
	source     framegen.Stage
	transforms []framegen.Stage
	sink       Sink
	opts       Options

	mu      sync.Mutex
	linked  []format.Descriptor
	running bool

	produced  atomic.Uint64
	delivered atomic.Uint64
	skipped   atomic.Uint64
}

// NewRunner creates a runner. Nothing is negotiated or started yet.
func NewRunner(source framegen.Stage, sink Sink, opts Options, transforms ...framegen.Stage) *Runner {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 1
	}
	return &Runner{
		id:         uuid.New(),
		source:     source,
		transforms: transforms,
		sink:       sink,
		opts:       opts,
	}
}

// ID returns the stream id used in log fields.
func (r *Runner) ID() uuid.UUID { return r.id }

// Negotiate fixes the source at preferred and links each transform in turn.
// The source's caps filtered by preferred are fixated, then every transform
// is asked what it can output for its input and the result is narrowed to
// the canonical format (or SinkCaps on the last link). Calling Negotiate
// again while streaming renegotiates every stage.
func (r *Runner) Negotiate(ctx context.Context, preferred format.Descriptor) error {
	caps, err := framegen.Negotiate(r.source, format.DirectionSrc, nil, format.Set{format.FromDescriptor(preferred)})
	if err != nil {
		return err
	}
	cur, err := fixateFirst(caps, preferred)
	if err != nil {
		return fmt.Errorf("source %q: %w", r.source.Name(), err)
	}
	if err := framegen.Configure(ctx, r.source, format.Descriptor{}, cur); err != nil {
		return fmt.Errorf("configure source %q: %w", r.source.Name(), err)
	}
	linked := []format.Descriptor{cur}

	for i, t := range r.transforms {
		filter := format.Set{format.FromDescriptor(cur.WithFormat(format.CanonicalFormat))}
		if i == len(r.transforms)-1 && r.opts.SinkCaps != nil {
			filter = r.opts.SinkCaps
		}
		caps, err := framegen.Negotiate(t, format.DirectionSink, format.Set{format.FromDescriptor(cur)}, filter)
		if err != nil {
			return err
		}
		out, err := fixateFirst(caps, cur)
		if err != nil {
			return fmt.Errorf("link %q -> %q: %w", linkName(r, i), t.Name(), err)
		}
		if err := framegen.Configure(ctx, t, cur, out); err != nil {
			return fmt.Errorf("configure %q: %w", t.Name(), err)
		}
		linked = append(linked, out)
		cur = out
	}

	r.mu.Lock()
	r.linked = linked
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Runner.Negotiate",
		"stream_id": r.id.String(),
		"source":    linked[0].String(),
		"sink":      cur.String(),
		"stages":    len(linked),
	}).Info("Pipeline negotiated")
	return nil
}

func linkName(r *Runner, i int) string {
	if i == 0 {
		return r.source.Name()
	}
	return r.transforms[i-1].Name()
}

func fixateFirst(caps format.Set, preferred format.Descriptor) (format.Descriptor, error) {
	if caps.Empty() {
		return format.Descriptor{}, fmt.Errorf("%w: for %s", format.ErrNoCommonFormat, preferred)
	}
	return caps[0].Fixate(preferred)
}

// Formats returns the negotiated format of every link, source first.
func (r *Runner) Formats() []format.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]format.Descriptor(nil), r.linked...)
}

// Run streams frames until Options.Frames are delivered, ctx is done or a
// stage fails. Cancelling ctx is a clean stop and returns nil. Run starts a
// source that implements Starter.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if len(r.linked) == 0 {
		r.mu.Unlock()
		return ErrNotLinked
	}
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if s, ok := r.source.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start source %q: %w", r.source.Name(), err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Runner.Run",
		"stream_id": r.id.String(),
		"frames":    r.opts.Frames,
	}).Info("Pipeline running")

	queue := make(chan *video.Frame, r.opts.QueueDepth)
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(queue)
		return r.produce(gctx, queue, done)
	})
	g.Go(func() error {
		defer close(done)
		return r.consume(gctx, queue)
	})

	err := g.Wait()
	for f := range queue {
		_ = f.Release()
	}

	fields := logrus.Fields{
		"function":  "Runner.Run",
		"stream_id": r.id.String(),
		"produced":  r.produced.Load(),
		"delivered": r.delivered.Load(),
		"skipped":   r.skipped.Load(),
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logrus.WithFields(fields).Info("Pipeline cancelled")
		return nil
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["kind"] = framegen.Classify(err).String()
		logrus.WithFields(fields).Error("Pipeline failed")
		return err
	}
	logrus.WithFields(fields).Info("Pipeline finished")
	return nil
}

func (r *Runner) produce(ctx context.Context, queue chan<- *video.Frame, done <-chan struct{}) error {
	for r.opts.Frames == 0 || r.produced.Load() < r.opts.Frames {
		frame, err := framegen.Produce(ctx, r.source)
		if err != nil {
			return err
		}
		if frame == nil {
			r.skipped.Add(1)
			continue
		}
		r.produced.Add(1)

		select {
		case queue <- frame:
		case <-done:
			_ = frame.Release()
			return nil
		case <-ctx.Done():
			_ = frame.Release()
			return ctx.Err()
		}
	}
	return nil
}

func (r *Runner) consume(ctx context.Context, queue <-chan *video.Frame) error {
	for frame := range queue {
		if err := r.deliver(ctx, frame); err != nil {
			return err
		}
		n := r.delivered.Add(1)
		logrus.WithFields(logrus.Fields{
			"function":  "Runner.consume",
			"stream_id": r.id.String(),
			"seq":       frame.Seq,
			"delivered": n,
		}).Trace("Frame delivered")
		if r.opts.Frames > 0 && n >= r.opts.Frames {
			return nil
		}
	}
	return nil
}

// deliver passes frame through every transform and into the sink, releasing
// each intermediate once the next stage has consumed it.
func (r *Runner) deliver(ctx context.Context, frame *video.Frame) error {
	cur := frame
	for _, t := range r.transforms {
		if cur.IsSurface() {
			_ = cur.Release()
			return fmt.Errorf("%w: %q", ErrSurfaceTransform, t.Name())
		}
		out, err := framegen.Consume(ctx, t, cur)
		_ = cur.Release()
		if err != nil {
			return err
		}
		cur = out
	}

	err := r.sink(ctx, cur)
	if rerr := cur.Release(); err == nil && rerr != nil {
		err = fmt.Errorf("release frame %d: %w", cur.Seq, rerr)
	}
	return err
}

// Stats returns the frame counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Produced:  r.produced.Load(),
		Delivered: r.delivered.Load(),
		Skipped:   r.skipped.Load(),
	}
}

// Stop stops every stage, source first, and joins their errors.
func (r *Runner) Stop(ctx context.Context) error {
	var errs []error
	if err := r.source.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop %q: %w", r.source.Name(), err))
	}
	for _, t := range r.transforms {
		if err := t.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %q: %w", t.Name(), err))
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Runner.Stop",
		"stream_id": r.id.String(),
	}).Info("Pipeline stopped")
	return errors.Join(errs...)
}
