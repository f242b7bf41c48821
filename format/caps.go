package format

import (
	"fmt"
	"math"
	"strings"
)

// IntRange is an inclusive integer range. Min == Max is a fixed value.
type IntRange struct {
	Min int
	Max int
}

// Fixed returns the range holding only v.
func Fixed(v int) IntRange {
	return IntRange{Min: v, Max: v}
}

// Contains reports whether v lies inside r.
func (r IntRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Intersect returns the overlap of r and o.
func (r IntRange) Intersect(o IntRange) (IntRange, bool) {
	out := IntRange{Min: max(r.Min, o.Min), Max: min(r.Max, o.Max)}
	return out, out.Min <= out.Max
}

// Clamp returns v limited to r.
func (r IntRange) Clamp(v int) int {
	return min(max(v, r.Min), r.Max)
}

func (r IntRange) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// FractionRange is an inclusive range of frame rates.
type FractionRange struct {
	Min Fraction
	Max Fraction
}

// FixedRate returns the range holding only f.
func FixedRate(f Fraction) FractionRange {
	return FractionRange{Min: f, Max: f}
}

// Contains reports whether f lies inside r.
func (r FractionRange) Contains(f Fraction) bool {
	return f.Den > 0 && f.Compare(r.Min) >= 0 && f.Compare(r.Max) <= 0
}

// Intersect returns the overlap of r and o.
func (r FractionRange) Intersect(o FractionRange) (FractionRange, bool) {
	out := r
	if o.Min.Compare(out.Min) > 0 {
		out.Min = o.Min
	}
	if o.Max.Compare(out.Max) < 0 {
		out.Max = o.Max
	}
	return out, out.Min.Compare(out.Max) <= 0
}

func (r FractionRange) String() string {
	if r.Min.Compare(r.Max) == 0 {
		return r.Min.String()
	}
	return fmt.Sprintf("[%s, %s]", r.Min, r.Max)
}

// Structure is one entry of a caps Set: a media type with one pixel format and
// ranges for size and rate.
type Structure struct {
	MediaType string
	Format    PixelFormat
	Width     IntRange
	Height    IntRange
	FrameRate FractionRange
}

// FromDescriptor returns the fixed structure describing d.
func FromDescriptor(d Descriptor) Structure {
	return Structure{
		MediaType: MediaTypeRawVideo,
		Format:    d.Format,
		Width:     Fixed(d.Width),
		Height:    Fixed(d.Height),
		FrameRate: FixedRate(d.FrameRate),
	}
}

// WithFormat returns a copy of s carrying pixel format f.
func (s Structure) WithFormat(f PixelFormat) Structure {
	s.Format = f
	return s
}

// Intersect returns the structure accepted by both s and o.
func (s Structure) Intersect(o Structure) (Structure, bool) {
	if s.MediaType != o.MediaType || s.Format != o.Format {
		return Structure{}, false
	}
	w, ok := s.Width.Intersect(o.Width)
	if !ok {
		return Structure{}, false
	}
	h, ok := s.Height.Intersect(o.Height)
	if !ok {
		return Structure{}, false
	}
	r, ok := s.FrameRate.Intersect(o.FrameRate)
	if !ok {
		return Structure{}, false
	}
	return Structure{MediaType: s.MediaType, Format: s.Format, Width: w, Height: h, FrameRate: r}, true
}

// Accepts reports whether the fixed descriptor d fits inside s.
func (s Structure) Accepts(d Descriptor) bool {
	return s.MediaType == MediaTypeRawVideo &&
		s.Format == d.Format &&
		s.Width.Contains(d.Width) &&
		s.Height.Contains(d.Height) &&
		s.FrameRate.Contains(d.FrameRate)
}

// Fixate picks the descriptor inside s closest to preferred. Sizes are
// clamped; the rate is clamped to the range ends.
func (s Structure) Fixate(preferred Descriptor) (Descriptor, error) {
	if s.MediaType != MediaTypeRawVideo || !s.Format.Known() {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFixed, s)
	}
	d := Descriptor{
		Format: s.Format,
		Width:  s.Width.Clamp(preferred.Width),
		Height: s.Height.Clamp(preferred.Height),
	}
	rate := preferred.FrameRate
	switch {
	case rate.Den <= 0 || rate.Compare(s.FrameRate.Min) < 0:
		rate = s.FrameRate.Min
	case rate.Compare(s.FrameRate.Max) > 0:
		rate = s.FrameRate.Max
	}
	d.FrameRate = rate
	if err := check(d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrNotFixed, err)
	}
	return d, nil
}

// String renders s in caps syntax.
func (s Structure) String() string {
	return fmt.Sprintf("%s, format=%s, width=%s, height=%s, framerate=%s",
		s.MediaType, s.Format, s.Width, s.Height, s.FrameRate)
}

// Set is an ordered list of structures; earlier entries are preferred.
type Set []Structure

// Empty reports whether s accepts nothing.
func (s Set) Empty() bool {
	return len(s) == 0
}

// Contains reports whether any structure of s accepts d.
func (s Set) Contains(d Descriptor) bool {
	for _, st := range s {
		if st.Accepts(d) {
			return true
		}
	}
	return false
}

// Formats returns the distinct pixel formats of s in order.
func (s Set) Formats() []PixelFormat {
	var out []PixelFormat
	for _, st := range s {
		if !containsFormat(out, st.Format) {
			out = append(out, st.Format)
		}
	}
	return out
}

// String renders s as caps, "EMPTY" when it accepts nothing.
func (s Set) String() string {
	if len(s) == 0 {
		return "EMPTY"
	}
	parts := make([]string, len(s))
	for i, st := range s {
		parts[i] = st.String()
	}
	return strings.Join(parts, "; ")
}

// appendUnique appends st unless an equal structure is already present.
func (s Set) appendUnique(st Structure) Set {
	for _, existing := range s {
		if existing == st {
			return s
		}
	}
	return append(s, st)
}

// IntersectFirst returns the structures accepted by both filter and other,
// ordered by filter: for each filter entry in turn, every overlap with other
// is appended. Duplicates keep their first position.
func IntersectFirst(filter, other Set) Set {
	var out Set
	for _, f := range filter {
		for _, o := range other {
			if st, ok := f.Intersect(o); ok {
				out = out.appendUnique(st)
			}
		}
	}
	return out
}

// AnyRange is the unconstrained size range of template caps.
var AnyRange = IntRange{Min: 1, Max: MaxDimension}

// AnyRate is the unconstrained rate range of template caps.
var AnyRate = FractionRange{Min: Fraction{Num: 0, Den: 1}, Max: Fraction{Num: math.MaxInt32, Den: 1}}

// TemplateCaps builds a raw-video Set with one structure per format sharing
// the given ranges.
func TemplateCaps(formats []PixelFormat, width, height IntRange, rate FractionRange) Set {
	out := make(Set, 0, len(formats))
	for _, f := range formats {
		out = append(out, Structure{
			MediaType: MediaTypeRawVideo,
			Format:    f,
			Width:     width,
			Height:    height,
			FrameRate: rate,
		})
	}
	return out
}

func containsFormat(list []PixelFormat, f PixelFormat) bool {
	for _, x := range list {
		if x == f {
			return true
		}
	}
	return false
}
