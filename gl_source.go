package framegen

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/gpu"
	"github.com/opd-ai/framegen/pacing"
	"github.com/opd-ai/framegen/video"
)

// OutputMode selects how the GPU source hands frames downstream.
type OutputMode int

const (
	// OutputReadback copies each frame into a CPU buffer.
	OutputReadback OutputMode = iota
	// OutputSurface hands out swap chain surfaces without readback.
	OutputSurface
)

// String returns a human-readable representation of the output mode.
func (m OutputMode) String() string {
	switch m {
	case OutputReadback:
		return "readback"
	case OutputSurface:
		return "surface"
	default:
		return "unknown"
	}
}

// ParseOutputMode parses "readback" or "surface".
func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(s) {
	case "readback", "":
		return OutputReadback, nil
	case "surface":
		return OutputSurface, nil
	default:
		return OutputReadback, fmt.Errorf("unknown output mode %q", s)
	}
}

// GPU source template limits.
var (
	GLSizeRange = format.IntRange{Min: 512, Max: 1024}
	GLRateRange = format.FractionRange{
		Min: format.Fraction{Num: 25, Den: 1},
		Max: format.Fraction{Num: 120, Den: 1},
	}
)

// GLSourceCaps returns the default template caps of the GPU source.
func GLSourceCaps() format.Set {
	return format.TemplateCaps([]format.PixelFormat{format.PixelFormatBGRx}, GLSizeRange, GLSizeRange, GLRateRange)
}

// GLSourceOptions configures a GLSource.
type GLSourceOptions struct {
	SourceOptions

	// Factory creates the device context on the worker thread; nil uses a
	// software context.
	Factory gpu.ContextFactory
	// Output selects readback or surface hand-off.
	Output OutputMode
	// Texture, when set, is drawn with a bilinear blit instead of the pulse
	// clear.
	Texture image.Image
	// Template is the caps the source advertises and accepts; nil means
	// GLSourceCaps.
	Template format.Set
	// SwapChainDepth is the swap chain capacity; 0 means the default.
	SwapChainDepth int
	// StartupTimeout bounds worker startup; 0 means the default.
	StartupTimeout time.Duration
}

// GLSource produces paced frames rendered by a GPU worker.
//
// Start spawns the worker, which owns the device context for its whole life.
// SetFormat before or after Start; renegotiation while streaming only resizes
// the swap chain. Produce is driven from one streaming goroutine.
type GLSource struct {
	name string
	opts GLSourceOptions

	lifecycle
	signals

	mu        sync.Mutex
	worker    *gpu.Worker
	swapChain *gpu.SwapChain
	pacer     *pacing.Pacer
	desc      format.Descriptor
}

// NewGLSource creates a GPU source. It does not start the worker.
func NewGLSource(name string, opts GLSourceOptions) *GLSource {
	opts.SourceOptions = opts.SourceOptions.withDefaults()
	if opts.Factory == nil {
		opts.Factory = gpu.SoftwareFactory(gpu.SoftwareOptions{}, nil)
	}
	if opts.Template == nil {
		opts.Template = GLSourceCaps()
	}
	return &GLSource{name: name, opts: opts}
}

// Name returns the stage name.
func (g *GLSource) Name() string { return g.name }

// Capabilities returns negotiate, configure and produce.
func (g *GLSource) Capabilities() Capability {
	return CapNegotiate | CapConfigure | CapProduce
}

// TransformCaps returns the template narrowed by filter.
func (g *GLSource) TransformCaps(_ format.Direction, _, filter format.Set) format.Set {
	if filter == nil {
		return g.opts.Template
	}
	return format.IntersectFirst(filter, g.opts.Template)
}

// Start spawns the render worker and waits for its handshake. The initial
// surface size is the negotiated one, or the template's smallest.
func (g *GLSource) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.worker != nil {
		return nil
	}
	if g.current() == StateStopped {
		return g.fail(g.name, fmt.Errorf("%w: start after stop", ErrInvalidState))
	}

	size := gpu.SizeOf(g.desc)
	if !size.Valid() {
		if len(g.opts.Template) == 0 {
			return g.fail(g.name, fmt.Errorf("%w: empty template", format.ErrNoCommonFormat))
		}
		d, err := g.opts.Template[0].Fixate(format.Descriptor{})
		if err != nil {
			return g.fail(g.name, err)
		}
		size = gpu.SizeOf(d)
	}

	worker, err := gpu.StartWorker(g.opts.Factory, gpu.WorkerOptions{
		Size:           size,
		SwapChainDepth: g.opts.SwapChainDepth,
		StartupTimeout: g.opts.StartupTimeout,
	})
	if err != nil {
		return g.fail(g.name, err)
	}
	swapChain, err := worker.SwapChain(ctx)
	if err != nil {
		_ = worker.Shutdown(context.Background())
		return g.fail(g.name, err)
	}
	if g.desc.Width > 0 {
		if err := worker.SetFormat(ctx, g.desc); err != nil {
			_ = worker.Shutdown(context.Background())
			return g.fail(g.name, err)
		}
	}

	g.worker = worker
	g.swapChain = swapChain

	logrus.WithFields(logrus.Fields{
		"function":  "GLSource.Start",
		"stage":     g.name,
		"worker_id": worker.ID().String(),
		"size":      size.String(),
		"output":    g.opts.Output.String(),
	}).Info("GPU source started")
	return nil
}

// SetFormat fixes the output format. With a running worker the swap chain is
// resized through it; this fails while a surface is checked out.
func (g *GLSource) SetFormat(ctx context.Context, d format.Descriptor) error {
	geo, err := validateSourceFormat(d, g.opts.Template, g.opts.RowAlign)
	if err != nil {
		return g.fail(g.name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current() == StateStopped {
		return g.fail(g.name, fmt.Errorf("%w: configure after stop", ErrInvalidState))
	}
	if g.worker != nil {
		if err := g.worker.SetFormat(ctx, d); err != nil {
			return g.fail(g.name, err)
		}
	}
	prev, err := g.configure(geo, geo)
	if err != nil {
		return g.fail(g.name, err)
	}

	g.desc = d
	if g.pacer == nil {
		g.pacer = g.opts.newPacer(d.FrameRate)
	} else {
		g.pacer.SetRate(d.FrameRate)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "GLSource.SetFormat",
		"stage":         g.name,
		"format":        d.String(),
		"renegotiation": prev == StateStreaming,
	}).Info("GPU source format set")
	return nil
}

// Produce waits for the next frame slot and renders it. In readback mode
// the frame carries pixels from the source's pool. In surface mode it
// carries a *gpu.Surface in Handle, and releasing the frame recycles the
// surface; a nil frame means the previous surface is still checked out.
func (g *GLSource) Produce(ctx context.Context) (*video.Frame, error) {
	neg, err := g.negotiated()
	if err != nil {
		return nil, g.fail(g.name, err)
	}

	g.mu.Lock()
	worker, swapChain, pacer := g.worker, g.swapChain, g.pacer
	g.mu.Unlock()
	if worker == nil {
		return nil, g.fail(g.name, fmt.Errorf("%w: worker not started", ErrNotReady))
	}

	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}
	pts := pacer.Scheduled()
	req := gpu.RenderRequest{Elapsed: pts, Texture: g.opts.Texture}

	var frame *video.Frame
	if g.opts.Output == OutputReadback {
		frame = g.opts.Pool.Get(neg.out)
		req.Readback = frame.Data
		req.Geometry = neg.out
	}

	if _, err := worker.RenderFrame(ctx, req); err != nil {
		if frame != nil {
			_ = frame.Release()
		}
		return nil, g.fail(g.name, err)
	}

	if g.opts.Output == OutputSurface {
		surface, ok := swapChain.TakeSurface()
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "GLSource.Produce",
				"stage":    g.name,
			}).Trace("No surface available")
			return nil, nil
		}
		frame = &video.Frame{Geometry: neg.out, Handle: surface}
		frame.SetRelease(func() error {
			return swapChain.RecycleSurface(surface)
		})
	}

	frame.Seq = pacer.Frames()
	frame.PTS = pts
	frame.Duration = pacer.Period()

	if g.streaming() {
		logrus.WithFields(logrus.Fields{
			"function": "GLSource.Produce",
			"stage":    g.name,
		}).Info("GPU source streaming")
	}
	g.frameReady(frame)
	return frame, nil
}

// SwapChain returns the worker's swap chain, nil before Start.
func (g *GLSource) SwapChain() *gpu.SwapChain {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.swapChain
}

// Pacer returns the source's frame pacer, nil before SetFormat.
func (g *GLSource) Pacer() *pacing.Pacer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pacer
}

// State returns the lifecycle state.
func (g *GLSource) State() StreamState {
	return g.current()
}

// Stop releases the negotiation and shuts the worker down. Surfaces still
// checked out become invalid.
func (g *GLSource) Stop(ctx context.Context) error {
	prev := g.stop()

	g.mu.Lock()
	worker := g.worker
	g.worker = nil
	g.mu.Unlock()

	if worker == nil {
		return nil
	}
	err := worker.Shutdown(ctx)

	logrus.WithFields(logrus.Fields{
		"function":  "GLSource.Stop",
		"stage":     g.name,
		"worker_id": worker.ID().String(),
		"was":       prev.String(),
	}).Info("GPU source stopped")

	if err != nil {
		return fmt.Errorf("shutdown worker: %w", err)
	}
	return nil
}
