package video

import (
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/framegen/format"
)

// Frame is one video frame travelling between stages.
//
// A frame carries either CPU-visible pixels in Data, laid out by Geometry, or
// an opaque GPU handle in Handle with Data nil. Frames obtained from a Pool or
// from a GPU swap chain must be released exactly once.
type Frame struct {
	Geometry format.Geometry
	Data     []byte

	// Handle is an opaque surface handle for frames exchanged without
	// readback. Its concrete type belongs to the GPU backend.
	Handle any

	Seq      uint64
	PTS      time.Duration
	Duration time.Duration

	releaseOnce sync.Once
	release     func() error
	releaseErr  error
}

// NewFrame wraps data as a frame with no release hook.
func NewFrame(geo format.Geometry, data []byte) *Frame {
	return &Frame{Geometry: geo, Data: data}
}

// SetRelease installs the hook Release will run.
func (f *Frame) SetRelease(fn func() error) {
	f.release = fn
}

// Release hands the frame's backing storage back to its owner. Calling it
// more than once returns the first result.
func (f *Frame) Release() error {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.releaseErr = f.release()
		}
	})
	return f.releaseErr
}

// IsSurface reports whether the frame carries a GPU handle instead of pixels.
func (f *Frame) IsSurface() bool {
	return f.Data == nil && f.Handle != nil
}

// Digest returns the BLAKE2b-256 sum of the frame's visible pixels. Row
// padding does not contribute, so two frames with equal pictures and
// different strides digest equally. Surface frames digest to the zero value.
func (f *Frame) Digest() [32]byte {
	var sum [32]byte
	if f.Data == nil {
		return sum
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return sum
	}
	rowBytes := f.Geometry.RowBytes()
	stride := f.Geometry.Stride()
	for y := 0; y < f.Geometry.Height; y++ {
		start := y * stride
		end := start + rowBytes
		if end > len(f.Data) {
			break
		}
		h.Write(f.Data[start:end])
	}
	copy(sum[:], h.Sum(nil))
	return sum
}
