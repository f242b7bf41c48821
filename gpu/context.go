package gpu

import (
	"fmt"
	"image"
	"image/color"

	"github.com/opd-ai/framegen/format"
)

// Size is a surface size in pixels.
type Size struct {
	Width  int
	Height int
}

// SizeOf returns the size of a descriptor.
func SizeOf(d format.Descriptor) Size {
	return Size{Width: d.Width, Height: d.Height}
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// String returns the size as WxH.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// SurfaceHandle is a device-specific surface name.
type SurfaceHandle uint64

// Context is a device/context pair. Implementations are not safe for
// concurrent use and must only be called from the goroutine that created
// them; the render worker is that goroutine.
type Context interface {
	// CreateSurface allocates an off-screen surface. Allocation failure
	// wraps ErrResourceExhausted.
	CreateSurface(size Size) (SurfaceHandle, error)
	// DestroySurface frees a surface.
	DestroySurface(h SurfaceHandle) error
	// BindRenderTarget makes h the target of later draws and readbacks.
	BindRenderTarget(h SurfaceHandle) error
	// Clear fills the bound target with c.
	Clear(c color.RGBA) error
	// Blit scales src over the whole bound target with bilinear filtering.
	Blit(src image.Image) error
	// ReadPixels copies the bound target into dst laid out as geo, which
	// must describe a BGRx image of the target's size.
	ReadPixels(dst []byte, geo format.Geometry) error
	// Flush waits for queued work on the bound target to complete.
	Flush() error
	// Release frees the context. Later calls fail.
	Release() error
}

// ContextFactory creates a Context on the calling goroutine.
type ContextFactory func() (Context, error)

// pulseClear returns the clear colour for a pulse pixel in BGRx order. The
// fourth byte travels in the alpha channel so readback reproduces it.
func pulseClear(px [4]byte) color.RGBA {
	return color.RGBA{B: px[0], G: px[1], R: px[2], A: px[3]}
}
