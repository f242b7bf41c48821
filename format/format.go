package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MediaTypeRawVideo is the media type of uncompressed video frames.
	MediaTypeRawVideo = "video/x-raw"

	// MaxDimension is the largest width or height a descriptor may carry.
	// It matches the upper bound of the integer ranges in template caps.
	MaxDimension = math.MaxInt32

	// DefaultRowAlign is the row alignment Validate applies to strides.
	DefaultRowAlign = 4
)

// PixelFormat is an enumerated pixel layout tag.
type PixelFormat uint8

const (
	// PixelFormatUnknown is the zero value and never validates.
	PixelFormatUnknown PixelFormat = iota
	// PixelFormatBGRx is packed 32-bit blue, green, red, padding. It is the
	// canonical format every stage must support.
	PixelFormatBGRx
	// PixelFormatBGRA is packed 32-bit blue, green, red, alpha.
	PixelFormatBGRA
	// PixelFormatRGBA is packed 32-bit red, green, blue, alpha.
	PixelFormatRGBA
	// PixelFormatGray8 is a single 8-bit luma channel.
	PixelFormatGray8
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatBGRx:  "BGRx",
	PixelFormatBGRA:  "BGRA",
	PixelFormatRGBA:  "RGBA",
	PixelFormatGray8: "GRAY8",
}

// String returns the caps name of the format.
func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", uint8(f))
}

// Known reports whether f is a defined pixel format.
func (f PixelFormat) Known() bool {
	_, ok := pixelFormatNames[f]
	return ok
}

// BytesPerPixel returns the size of one pixel in the first plane, or 0 for
// unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatBGRx, PixelFormatBGRA, PixelFormatRGBA:
		return 4
	case PixelFormatGray8:
		return 1
	default:
		return 0
	}
}

// Packed32 reports whether f is one of the packed 32-bit formats.
func (f PixelFormat) Packed32() bool {
	return f.BytesPerPixel() == 4
}

// ParsePixelFormat maps a caps format name back to its tag. Matching is
// case-insensitive.
func ParsePixelFormat(name string) (PixelFormat, error) {
	for f, n := range pixelFormatNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return PixelFormatUnknown, fmt.Errorf("%w: %q", ErrUnknownPixelFormat, name)
}

// Fraction is a rational frame rate. A zero numerator means "variable rate".
type Fraction struct {
	Num int32
	Den int32
}

// String renders the fraction as "num/den".
func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// Float returns the fraction as a float64, or 0 when the denominator is zero.
func (f Fraction) Float() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

// ParseFraction parses "num/den" or a bare integer rate such as "30".
func ParseFraction(s string) (Fraction, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		den = "1"
	}
	n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 32)
	if err != nil {
		return Fraction{}, fmt.Errorf("%w: frame rate %q", ErrInvalidFormat, s)
	}
	d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 32)
	if err != nil || d <= 0 || n < 0 {
		return Fraction{}, fmt.Errorf("%w: frame rate %q", ErrInvalidFormat, s)
	}
	return Fraction{Num: int32(n), Den: int32(d)}, nil
}

// Compare returns -1, 0 or 1 as f is less than, equal to or greater than g.
// Both denominators must be positive.
func (f Fraction) Compare(g Fraction) int {
	l := int64(f.Num) * int64(g.Den)
	r := int64(g.Num) * int64(f.Den)
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

// Descriptor is a fixed, negotiated stream format.
type Descriptor struct {
	Format    PixelFormat
	Width     int
	Height    int
	FrameRate Fraction
}

// String renders the descriptor in caps syntax.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s, format=%s, width=%d, height=%d, framerate=%s",
		MediaTypeRawVideo, d.Format, d.Width, d.Height, d.FrameRate)
}

// FrameDuration returns the duration of one frame, or 0 for variable rate.
func (d Descriptor) FrameDuration() time.Duration {
	if d.FrameRate.Num <= 0 || d.FrameRate.Den <= 0 {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(d.FrameRate.Den) / int64(d.FrameRate.Num))
}

// WithFormat returns a copy of d carrying pixel format f.
func (d Descriptor) WithFormat(f PixelFormat) Descriptor {
	d.Format = f
	return d
}

// SameSize reports whether d and o describe frames of identical dimensions.
func (d Descriptor) SameSize(o Descriptor) bool {
	return d.Width == o.Width && d.Height == o.Height
}

// Plane is the memory layout of one image plane.
type Plane struct {
	Offset int
	Stride int
	Size   int
}

// Geometry is the memory layout derived from a Descriptor.
type Geometry struct {
	Descriptor
	Planes []Plane
	Size   int
}

// RowBytes returns the number of visible bytes in one row of plane 0.
func (g Geometry) RowBytes() int {
	return g.Width * g.Format.BytesPerPixel()
}

// Stride returns the stride of plane 0, or 0 for an empty geometry.
func (g Geometry) Stride() int {
	if len(g.Planes) == 0 {
		return 0
	}
	return g.Planes[0].Stride
}

// Validate checks d and derives its Geometry with the default row alignment.
func Validate(d Descriptor) (Geometry, error) {
	return ValidateAligned(d, DefaultRowAlign)
}

// ValidateAligned checks d and derives its Geometry with rows padded to a
// multiple of align bytes. An align below 1 is treated as 1.
func ValidateAligned(d Descriptor, align int) (Geometry, error) {
	if err := check(d); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "ValidateAligned",
			"descriptor": d.String(),
			"error":      err.Error(),
		}).Debug("Descriptor rejected")
		return Geometry{}, err
	}
	if align < 1 {
		align = 1
	}

	stride, ok := roundUp(d.Width*d.Format.BytesPerPixel(), align)
	if !ok || stride > math.MaxInt/d.Height {
		err := fmt.Errorf("%w: %w: %s does not fit in memory", ErrInvalidFormat, ErrDimensionTooLarge, d)
		logrus.WithFields(logrus.Fields{
			"function":   "ValidateAligned",
			"descriptor": d.String(),
			"align":      align,
		}).Debug("Descriptor rejected")
		return Geometry{}, err
	}
	size := stride * d.Height

	return Geometry{
		Descriptor: d,
		Planes:     []Plane{{Offset: 0, Stride: stride, Size: size}},
		Size:       size,
	}, nil
}

func check(d Descriptor) error {
	switch {
	case !d.Format.Known():
		return fmt.Errorf("%w: %w: %s", ErrInvalidFormat, ErrUnknownPixelFormat, d.Format)
	case d.Width <= 0 || d.Height <= 0:
		return fmt.Errorf("%w: non-positive dimensions %dx%d", ErrInvalidFormat, d.Width, d.Height)
	case d.Width > MaxDimension || d.Height > MaxDimension:
		return fmt.Errorf("%w: %w: %dx%d", ErrInvalidFormat, ErrDimensionTooLarge, d.Width, d.Height)
	case d.FrameRate.Den <= 0:
		return fmt.Errorf("%w: frame rate denominator must be positive, got %s", ErrInvalidFormat, d.FrameRate)
	case d.FrameRate.Num < 0:
		return fmt.Errorf("%w: negative frame rate %s", ErrInvalidFormat, d.FrameRate)
	}
	return nil
}

// roundUp rounds n up to a multiple of align; ok is false on overflow.
func roundUp(n, align int) (int, bool) {
	if n > math.MaxInt-(align-1) {
		return 0, false
	}
	return (n + align - 1) / align * align, true
}
