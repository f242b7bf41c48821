package video

import (
	"fmt"

	"github.com/opd-ai/framegen/format"
)

// greenLift is added to the halved green channel. The sum peaks at
// 255/2 + 127 = 254, so the channel never wraps.
const greenLift = 127

// Transform remaps the pixels of in into out.
//
// Both geometries must share width and height. The input must be a packed
// 32-bit format and the output must be BGRx; any other output format fails
// with ErrUnsupportedFormat. Each row is addressed through its own stride and
// only the visible width*4 bytes of a row are touched, so row padding in either
// buffer is neither read nor written.
//
// Per pixel: byte 0 and byte 2 are halved, byte 1 is halved and lifted by
// 127, byte 3 is copied.
func Transform(inGeo format.Geometry, in []byte, outGeo format.Geometry, out []byte) error {
	if err := checkTransform(inGeo, in, outGeo, out); err != nil {
		return err
	}

	rowBytes := inGeo.Width * 4
	inStride, outStride := inGeo.Stride(), outGeo.Stride()

	for y := 0; y < inGeo.Height; y++ {
		src := in[y*inStride : y*inStride+rowBytes]
		dst := out[y*outStride : y*outStride+rowBytes]
		for i := 0; i+3 < len(src); i += 4 {
			dst[i] = src[i] / 2
			dst[i+1] = src[i+1]/2 + greenLift
			dst[i+2] = src[i+2] / 2
			dst[i+3] = src[i+3]
		}
	}
	return nil
}

func checkTransform(inGeo format.Geometry, in []byte, outGeo format.Geometry, out []byte) error {
	if outGeo.Format != format.PixelFormatBGRx {
		return fmt.Errorf("%w: no conversion to %s", ErrUnsupportedFormat, outGeo.Format)
	}
	if !inGeo.Format.Packed32() {
		return fmt.Errorf("%w: no conversion from %s", ErrUnsupportedFormat, inGeo.Format)
	}
	if !inGeo.SameSize(outGeo.Descriptor) {
		return fmt.Errorf("%w: input %dx%d, output %dx%d",
			ErrGeometryMismatch, inGeo.Width, inGeo.Height, outGeo.Width, outGeo.Height)
	}
	if err := checkPlane("input", inGeo, in); err != nil {
		return err
	}
	return checkPlane("output", outGeo, out)
}

// checkPlane verifies buf holds every visible byte of plane 0. The last row
// needs only its visible bytes, not a full stride.
func checkPlane(name string, geo format.Geometry, buf []byte) error {
	rowBytes := geo.RowBytes()
	stride := geo.Stride()
	if geo.Width <= 0 || geo.Height <= 0 {
		return fmt.Errorf("%w: %s geometry %dx%d", ErrGeometryMismatch, name, geo.Width, geo.Height)
	}
	if stride < rowBytes {
		return fmt.Errorf("%w: %s stride %d below row size %d", ErrShortBuffer, name, stride, rowBytes)
	}
	need := (geo.Height-1)*stride + rowBytes
	if len(buf) < need {
		return fmt.Errorf("%w: %s has %d bytes, needs %d", ErrShortBuffer, name, len(buf), need)
	}
	return nil
}
