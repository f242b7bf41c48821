package video

import (
	"fmt"

	"github.com/opd-ai/framegen/format"
)

// Effect converts the pixels of one frame into another of the same size.
type Effect interface {
	// Apply writes the processed pixels of src into dst.
	Apply(dst, src *Frame) error
	// GetName returns the effect name for identification
	GetName() string
	// Outputs lists the pixel formats Apply can write.
	Outputs() []format.PixelFormat
}

// RemapEffect is the tone remap performed by Transform.
type RemapEffect struct{}

// NewRemapEffect creates the remap effect.
func NewRemapEffect() *RemapEffect {
	return &RemapEffect{}
}

// Apply runs Transform from src into dst.
func (RemapEffect) Apply(dst, src *Frame) error {
	if dst == nil || src == nil {
		return ErrNilFrame
	}
	if err := Transform(src.Geometry, src.Data, dst.Geometry, dst.Data); err != nil {
		return fmt.Errorf("remap: %w", err)
	}
	dst.Seq = src.Seq
	dst.PTS = src.PTS
	dst.Duration = src.Duration
	return nil
}

// GetName returns the effect name.
func (RemapEffect) GetName() string {
	return "Remap"
}

// Outputs returns the formats Transform writes.
func (RemapEffect) Outputs() []format.PixelFormat {
	return []format.PixelFormat{format.PixelFormatBGRx}
}

// BrightnessEffect shifts the colour channels of a packed 32-bit frame by a
// fixed amount, clamping at 0 and 255. The fourth byte is copied unchanged.
type BrightnessEffect struct {
	adjustment int // -255 to +255
}

// NewBrightnessEffect creates a brightness adjustment effect.
// adjustment: -255 (darkest) to +255 (brightest), 0 = no change
func NewBrightnessEffect(adjustment int) *BrightnessEffect {
	return &BrightnessEffect{adjustment: max(-255, min(255, adjustment))}
}

// Apply writes the adjusted pixels of src into dst. dst and src may be the
// same frame.
func (be *BrightnessEffect) Apply(dst, src *Frame) error {
	if dst == nil || src == nil {
		return ErrNilFrame
	}
	if !src.Geometry.Format.Packed32() || dst.Geometry.Format != src.Geometry.Format {
		return fmt.Errorf("%w: brightness on %s into %s", ErrUnsupportedFormat, src.Geometry.Format, dst.Geometry.Format)
	}
	if !src.Geometry.SameSize(dst.Geometry.Descriptor) {
		return fmt.Errorf("%w: %dx%d into %dx%d", ErrGeometryMismatch,
			src.Geometry.Width, src.Geometry.Height, dst.Geometry.Width, dst.Geometry.Height)
	}
	if err := checkPlane("input", src.Geometry, src.Data); err != nil {
		return err
	}
	if err := checkPlane("output", dst.Geometry, dst.Data); err != nil {
		return err
	}

	rowBytes := src.Geometry.RowBytes()
	for y := 0; y < src.Geometry.Height; y++ {
		in := src.Data[y*src.Geometry.Stride() : y*src.Geometry.Stride()+rowBytes]
		out := dst.Data[y*dst.Geometry.Stride() : y*dst.Geometry.Stride()+rowBytes]
		for i := 0; i+3 < rowBytes; i += 4 {
			out[i] = be.shift(in[i])
			out[i+1] = be.shift(in[i+1])
			out[i+2] = be.shift(in[i+2])
			out[i+3] = in[i+3]
		}
	}
	dst.Seq, dst.PTS, dst.Duration = src.Seq, src.PTS, src.Duration
	return nil
}

func (be *BrightnessEffect) shift(v byte) byte {
	return byte(max(0, min(255, int(v)+be.adjustment)))
}

// GetName returns the effect name.
func (be *BrightnessEffect) GetName() string {
	return "Brightness"
}

// Outputs returns the formats Apply writes; the output keeps the input format.
func (be *BrightnessEffect) Outputs() []format.PixelFormat {
	return []format.PixelFormat{format.PixelFormatBGRx, format.PixelFormatBGRA, format.PixelFormatRGBA}
}

// EffectChain manages multiple effects applied in sequence.
//
// Intermediate results live in buffers borrowed from the chain's Pool, so a
// chain of any length writes only to dst once warmed up.
type EffectChain struct {
	effects []Effect
	pool    *Pool
}

// NewEffectChain creates a new effect processing chain.
func NewEffectChain(pool *Pool) *EffectChain {
	if pool == nil {
		pool = NewPool()
	}
	return &EffectChain{
		effects: make([]Effect, 0),
		pool:    pool,
	}
}

// AddEffect adds an effect to the processing chain.
func (ec *EffectChain) AddEffect(effect Effect) {
	ec.effects = append(ec.effects, effect)
}

// GetEffectCount returns the number of effects in the chain.
func (ec *EffectChain) GetEffectCount() int {
	return len(ec.effects)
}

// Clear removes all effects from the chain.
func (ec *EffectChain) Clear() {
	ec.effects = ec.effects[:0]
}

// GetName returns the effect name.
func (ec *EffectChain) GetName() string {
	return "Chain"
}

// Outputs returns the formats the last effect writes.
func (ec *EffectChain) Outputs() []format.PixelFormat {
	if len(ec.effects) == 0 {
		return nil
	}
	return ec.effects[len(ec.effects)-1].Outputs()
}

// Apply processes src through all effects in the chain and writes the result
// into dst. Every intermediate frame takes dst's geometry.
func (ec *EffectChain) Apply(dst, src *Frame) error {
	if dst == nil || src == nil {
		return ErrNilFrame
	}
	if len(ec.effects) == 0 {
		return copyVisible(dst, src)
	}

	current := src
	for i, effect := range ec.effects {
		target := dst
		if i < len(ec.effects)-1 {
			target = ec.pool.Get(dst.Geometry)
		}
		err := effect.Apply(target, current)
		if current != src {
			_ = current.Release()
		}
		if err != nil {
			if target != dst {
				_ = target.Release()
			}
			return fmt.Errorf("effect %d (%s) failed: %w", i, effect.GetName(), err)
		}
		current = target
	}
	return nil
}

// copyVisible copies the visible rows of src into dst.
func copyVisible(dst, src *Frame) error {
	if dst.Geometry.Format != src.Geometry.Format {
		return fmt.Errorf("%w: copy %s into %s", ErrUnsupportedFormat, src.Geometry.Format, dst.Geometry.Format)
	}
	if !src.Geometry.SameSize(dst.Geometry.Descriptor) {
		return ErrGeometryMismatch
	}
	if err := checkPlane("input", src.Geometry, src.Data); err != nil {
		return err
	}
	if err := checkPlane("output", dst.Geometry, dst.Data); err != nil {
		return err
	}
	rowBytes := src.Geometry.RowBytes()
	for y := 0; y < src.Geometry.Height; y++ {
		copy(dst.Data[y*dst.Geometry.Stride():y*dst.Geometry.Stride()+rowBytes],
			src.Data[y*src.Geometry.Stride():y*src.Geometry.Stride()+rowBytes])
	}
	dst.Seq, dst.PTS, dst.Duration = src.Seq, src.PTS, src.Duration
	return nil
}
