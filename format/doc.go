// Package format provides pixel formats, frame descriptors and caps
// negotiation for framegen stages.
//
// # Descriptors and Geometry
//
// A Descriptor is the fixed result of a negotiation: one pixel format, a frame
// size and a frame rate. Validate turns a Descriptor into a Geometry, the
// per-plane stride and buffer size every frame of the stream must honour:
//
//	geo, err := format.Validate(format.Descriptor{
//	    Format:    format.PixelFormatBGRx,
//	    Width:     64,
//	    Height:    64,
//	    FrameRate: format.Fraction{Num: 30, Den: 1},
//	})
//	if err != nil {
//	    // errors.Is(err, format.ErrInvalidFormat)
//	}
//
// Rows are aligned to 4 bytes by default. ValidateAligned accepts a larger
// alignment for buffers with padded rows; padding bytes belong to nobody and
// are never read or written by the transform.
//
// # Caps
//
// A Set is an ordered list of Structures, each one a media type plus a pixel
// format and integer/rational ranges. Order expresses preference. Sets print in
// the familiar caps syntax:
//
//	video/x-raw, format=BGRx, width=[1, 2147483647], height=[1, 2147483647], framerate=[0/1, 2147483647/1]
//
// # Negotiation
//
// Negotiator.ProposeAcceptable answers "given these caps on one side, what can
// the other side carry?":
//
//   - caps proposed on the sink (raw input) side widen to a Gray8 variant
//     followed by the input structures
//   - caps proposed on the src (processed output) side are forced to BGRx
//
// An optional filter restricts the answer to the ordered intersection, keeping
// the filter's order. An empty answer is a valid outcome: the link fails and the
// host tries something else.
package format
