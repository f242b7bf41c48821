package framegen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/pacing"
	"github.com/opd-ai/framegen/video"
)

// SourceCaps returns the template caps of the CPU test source: BGRx at any
// size and rate.
func SourceCaps() format.Set {
	return format.TemplateCaps([]format.PixelFormat{format.PixelFormatBGRx}, format.AnyRange, format.AnyRange, format.AnyRate)
}

// SourceOptions configures the paced sources.
type SourceOptions struct {
	// RowAlign is the row alignment of produced frames; 0 means
	// format.DefaultRowAlign.
	RowAlign int
	// Pool supplies frame buffers; nil creates a private pool.
	Pool *video.Pool
	// Clock drives the pacer; nil uses the wall clock.
	Clock pacing.TimeProvider
	// MaxDelay caps a single pacing wait; 0 means pacing.DefaultMaxDelay.
	MaxDelay time.Duration
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.RowAlign <= 0 {
		o.RowAlign = format.DefaultRowAlign
	}
	if o.Pool == nil {
		o.Pool = video.NewPool()
	}
	if o.Clock == nil {
		o.Clock = pacing.DefaultTimeProvider{}
	}
	return o
}

func (o SourceOptions) newPacer(rate format.Fraction) *pacing.Pacer {
	return pacing.NewPacer(rate, pacing.WithTimeProvider(o.Clock), pacing.WithMaxDelay(o.MaxDelay))
}

// TestSource produces paced frames of the brightness pulse on the CPU.
type TestSource struct {
	name string
	opts SourceOptions

	lifecycle
	signals

	// Produce is driven from one streaming goroutine; pmu guards the pacer
	// swap on renegotiation.
	pmu   sync.Mutex
	pacer *pacing.Pacer
}

// NewTestSource creates a CPU test source.
func NewTestSource(name string, opts SourceOptions) *TestSource {
	return &TestSource{name: name, opts: opts.withDefaults()}
}

// Name returns the stage name.
func (s *TestSource) Name() string { return s.name }

// Capabilities returns negotiate, configure and produce.
func (s *TestSource) Capabilities() Capability {
	return CapNegotiate | CapConfigure | CapProduce
}

// TransformCaps returns the source template narrowed by filter. A source has
// no upstream, so dir and caps are ignored.
func (s *TestSource) TransformCaps(_ format.Direction, _, filter format.Set) format.Set {
	if filter == nil {
		return SourceCaps()
	}
	return format.IntersectFirst(filter, SourceCaps())
}

// SetFormat fixes the output format and restarts pacing.
func (s *TestSource) SetFormat(_ context.Context, d format.Descriptor) error {
	geo, err := validateSourceFormat(d, SourceCaps(), s.opts.RowAlign)
	if err != nil {
		return s.fail(s.name, err)
	}
	prev, err := s.configure(geo, geo)
	if err != nil {
		return s.fail(s.name, err)
	}

	s.pmu.Lock()
	if s.pacer == nil {
		s.pacer = s.opts.newPacer(d.FrameRate)
	} else {
		s.pacer.SetRate(d.FrameRate)
	}
	s.pmu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":      "TestSource.SetFormat",
		"stage":         s.name,
		"format":        d.String(),
		"renegotiation": prev == StateStreaming,
	}).Info("Source format set")
	return nil
}

// Produce waits for the next frame slot and returns a filled frame. Release
// the frame when done.
func (s *TestSource) Produce(ctx context.Context) (*video.Frame, error) {
	neg, err := s.negotiated()
	if err != nil {
		return nil, s.fail(s.name, err)
	}
	pacer := s.currentPacer()
	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}

	pts := pacer.Scheduled()
	frame := s.opts.Pool.Get(neg.out)
	if err := video.FillPulse(neg.out, frame.Data, pts); err != nil {
		_ = frame.Release()
		return nil, s.fail(s.name, err)
	}
	frame.Seq = pacer.Frames()
	frame.PTS = pts
	frame.Duration = pacer.Period()

	if s.streaming() {
		logrus.WithFields(logrus.Fields{
			"function": "TestSource.Produce",
			"stage":    s.name,
		}).Info("Source streaming")
	}
	s.frameReady(frame)
	return frame, nil
}

func (s *TestSource) currentPacer() *pacing.Pacer {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return s.pacer
}

// Pacer returns the source's frame pacer, nil before SetFormat.
func (s *TestSource) Pacer() *pacing.Pacer {
	return s.currentPacer()
}

// State returns the lifecycle state.
func (s *TestSource) State() StreamState {
	return s.current()
}

// Stop releases the negotiation.
func (s *TestSource) Stop(_ context.Context) error {
	if s.stop() != StateStopped {
		logrus.WithFields(logrus.Fields{
			"function": "TestSource.Stop",
			"stage":    s.name,
		}).Info("Source stopped")
	}
	return nil
}

// validateSourceFormat checks d against a source template and derives its
// geometry.
func validateSourceFormat(d format.Descriptor, template format.Set, align int) (format.Geometry, error) {
	geo, err := format.ValidateAligned(d, align)
	if err != nil {
		return format.Geometry{}, err
	}
	if d.Format != format.PixelFormatBGRx {
		return format.Geometry{}, fmt.Errorf("%w: source produces %s, got %s",
			format.ErrNoCommonFormat, format.PixelFormatBGRx, d.Format)
	}
	if !template.Contains(d) {
		return format.Geometry{}, fmt.Errorf("%w: %s outside %s", format.ErrNoCommonFormat, d, template)
	}
	return geo, nil
}
