package video

import (
	"fmt"
	"time"

	"github.com/opd-ai/framegen/format"
)

// PulseBrightness returns the brightness of the pulse pattern at elapsed
// stream time: it ramps up over the first half of every second and back down
// over the second half, peaking at 250.
func PulseBrightness(elapsed time.Duration) uint8 {
	if elapsed < 0 {
		elapsed = 0
	}
	millis := int((elapsed % time.Second) / time.Millisecond)
	if millis < 500 {
		return uint8(millis / 2)
	}
	return uint8((1000 - millis) / 2)
}

// PulseColor returns the BGRx pixel of the pulse pattern at brightness b.
func PulseColor(b uint8) [4]byte {
	return [4]byte{b, b / 2, b / 4, 0}
}

// FillPulse paints every visible pixel of data with the pulse colour for
// elapsed. Row padding is left untouched.
func FillPulse(geo format.Geometry, data []byte, elapsed time.Duration) error {
	if geo.Format != format.PixelFormatBGRx {
		return fmt.Errorf("%w: pulse fill needs %s, got %s", ErrUnsupportedFormat, format.PixelFormatBGRx, geo.Format)
	}
	if err := checkPlane("fill", geo, data); err != nil {
		return err
	}

	px := PulseColor(PulseBrightness(elapsed))
	rowBytes := geo.RowBytes()
	stride := geo.Stride()
	for y := 0; y < geo.Height; y++ {
		row := data[y*stride : y*stride+rowBytes]
		for i := 0; i+3 < len(row); i += 4 {
			copy(row[i:i+4], px[:])
		}
	}
	return nil
}
