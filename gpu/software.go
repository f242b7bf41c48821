package gpu

import (
	"fmt"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/opd-ai/framegen/format"
)

// SoftwareOptions configures a SoftwareContext.
type SoftwareOptions struct {
	// MaxSurfaces limits live surfaces; 0 means unlimited.
	MaxSurfaces int
}

// SoftwareStats reports SoftwareContext activity.
type SoftwareStats struct {
	Allocations int64
	Frees       int64
	Live        int64
	Draws       int64
	Readbacks   int64
}

// SoftwareContext is a CPU rasterizer implementing Context on image.RGBA
// surfaces. Statistics may be read from any goroutine; every other method
// belongs to the owning goroutine like any other Context.
type SoftwareContext struct {
	opts     SoftwareOptions
	surfaces map[SurfaceHandle]*image.RGBA
	next     SurfaceHandle
	bound    *image.RGBA
	released bool

	allocations atomic.Int64
	frees       atomic.Int64
	draws       atomic.Int64
	readbacks   atomic.Int64
}

// NewSoftwareContext creates a software device context.
func NewSoftwareContext(opts SoftwareOptions) *SoftwareContext {
	return &SoftwareContext{
		opts:     opts,
		surfaces: make(map[SurfaceHandle]*image.RGBA),
	}
}

// SoftwareFactory returns a ContextFactory producing software contexts. When
// created is non-nil each new context is also sent to it, which lets tests
// inspect the worker's device.
func SoftwareFactory(opts SoftwareOptions, created chan<- *SoftwareContext) ContextFactory {
	return func() (Context, error) {
		sc := NewSoftwareContext(opts)
		if created != nil {
			created <- sc
		}
		return sc, nil
	}
}

// CreateSurface allocates an RGBA surface.
func (sc *SoftwareContext) CreateSurface(size Size) (SurfaceHandle, error) {
	if sc.released {
		return 0, ErrContextReleased
	}
	if !size.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSize, size)
	}
	if sc.opts.MaxSurfaces > 0 && len(sc.surfaces) >= sc.opts.MaxSurfaces {
		logrus.WithFields(logrus.Fields{
			"function":     "SoftwareContext.CreateSurface",
			"size":         size.String(),
			"live":         len(sc.surfaces),
			"max_surfaces": sc.opts.MaxSurfaces,
		}).Warn("Surface allocation limit reached")
		return 0, fmt.Errorf("%w: %d live surfaces", ErrResourceExhausted, len(sc.surfaces))
	}

	sc.next++
	sc.surfaces[sc.next] = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	sc.allocations.Add(1)

	logrus.WithFields(logrus.Fields{
		"function": "SoftwareContext.CreateSurface",
		"handle":   sc.next,
		"size":     size.String(),
	}).Trace("Surface allocated")

	return sc.next, nil
}

// DestroySurface frees a surface, unbinding it if bound.
func (sc *SoftwareContext) DestroySurface(h SurfaceHandle) error {
	if sc.released {
		return ErrContextReleased
	}
	img, ok := sc.surfaces[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSurface, h)
	}
	if sc.bound == img {
		sc.bound = nil
	}
	delete(sc.surfaces, h)
	sc.frees.Add(1)
	return nil
}

// BindRenderTarget binds h for drawing and readback.
func (sc *SoftwareContext) BindRenderTarget(h SurfaceHandle) error {
	if sc.released {
		return ErrContextReleased
	}
	img, ok := sc.surfaces[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSurface, h)
	}
	sc.bound = img
	return nil
}

// Clear fills the bound surface with c.
func (sc *SoftwareContext) Clear(c color.RGBA) error {
	target, err := sc.target()
	if err != nil {
		return err
	}
	px := [4]byte{c.R, c.G, c.B, c.A}
	for i := 0; i+3 < len(target.Pix); i += 4 {
		copy(target.Pix[i:i+4], px[:])
	}
	sc.draws.Add(1)
	return nil
}

// Blit scales src over the bound surface with bilinear filtering.
func (sc *SoftwareContext) Blit(src image.Image) error {
	target, err := sc.target()
	if err != nil {
		return err
	}
	if src == nil || src.Bounds().Empty() {
		return fmt.Errorf("%w: empty blit source", ErrInvalidSize)
	}
	draw.BiLinear.Scale(target, target.Bounds(), src, src.Bounds(), draw.Src, nil)
	sc.draws.Add(1)
	return nil
}

// ReadPixels converts the bound surface to BGRx rows in dst. Row padding in
// dst is left untouched.
func (sc *SoftwareContext) ReadPixels(dst []byte, geo format.Geometry) error {
	target, err := sc.target()
	if err != nil {
		return err
	}
	if err := checkReadback(target.Bounds(), dst, geo); err != nil {
		return err
	}

	stride := geo.Stride()
	for y := 0; y < geo.Height; y++ {
		src := target.Pix[y*target.Stride : y*target.Stride+geo.Width*4]
		row := dst[y*stride : y*stride+geo.Width*4]
		for i := 0; i+3 < len(src); i += 4 {
			row[i] = src[i+2]
			row[i+1] = src[i+1]
			row[i+2] = src[i]
			row[i+3] = src[i+3]
		}
	}
	sc.readbacks.Add(1)
	return nil
}

// Flush is a no-op; software draws complete synchronously.
func (sc *SoftwareContext) Flush() error {
	if sc.released {
		return ErrContextReleased
	}
	return nil
}

// Release frees every surface and invalidates the context.
func (sc *SoftwareContext) Release() error {
	if sc.released {
		return ErrContextReleased
	}
	leaked := len(sc.surfaces)
	for h := range sc.surfaces {
		delete(sc.surfaces, h)
		sc.frees.Add(1)
	}
	sc.bound = nil
	sc.released = true

	if leaked > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "SoftwareContext.Release",
			"surfaces": leaked,
		}).Warn("Released context with live surfaces")
	}
	return nil
}

// Stats returns a snapshot of device counters.
func (sc *SoftwareContext) Stats() SoftwareStats {
	allocations := sc.allocations.Load()
	frees := sc.frees.Load()
	return SoftwareStats{
		Allocations: allocations,
		Frees:       frees,
		Live:        allocations - frees,
		Draws:       sc.draws.Load(),
		Readbacks:   sc.readbacks.Load(),
	}
}

func (sc *SoftwareContext) target() (*image.RGBA, error) {
	if sc.released {
		return nil, ErrContextReleased
	}
	if sc.bound == nil {
		return nil, ErrNoRenderTarget
	}
	return sc.bound, nil
}

// checkReadback validates a readback destination against the target bounds.
func checkReadback(bounds image.Rectangle, dst []byte, geo format.Geometry) error {
	if geo.Format != format.PixelFormatBGRx {
		return fmt.Errorf("%w: readback into %s", ErrInvalidReadback, geo.Format)
	}
	if geo.Width != bounds.Dx() || geo.Height != bounds.Dy() {
		return fmt.Errorf("%w: readback %dx%d from %dx%d surface", ErrInvalidReadback,
			geo.Width, geo.Height, bounds.Dx(), bounds.Dy())
	}
	if geo.Stride() < geo.RowBytes() || len(dst) < (geo.Height-1)*geo.Stride()+geo.RowBytes() {
		return fmt.Errorf("%w: readback buffer of %d bytes for %dx%d", ErrInvalidReadback, len(dst), geo.Width, geo.Height)
	}
	return nil
}
