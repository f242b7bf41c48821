package framegen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/video"
)

func TestTestSourceProducesPacedPulse(t *testing.T) {
	ctx := context.Background()
	src := NewTestSource("src", fastSourceOptions())

	_, err := src.Produce(ctx)
	require.ErrorIs(t, err, ErrNotNegotiated)

	require.NoError(t, src.SetFormat(ctx, bgrx(8, 8)))
	assert.Equal(t, StateConfigured, src.State())

	var last *video.Frame
	for i := 0; i < 30; i++ {
		f, err := src.Produce(ctx)
		require.NoError(t, err)
		if last != nil {
			assert.Greater(t, f.PTS, last.PTS)
			require.NoError(t, last.Release())
		}
		last = f
	}
	defer last.Release()

	assert.Equal(t, StateStreaming, src.State())
	assert.Equal(t, uint64(30), last.Seq)
	assert.Equal(t, 30*33333*time.Microsecond, last.PTS)
	assert.Equal(t, 33333*time.Microsecond, last.Duration)

	px := video.PulseColor(video.PulseBrightness(last.PTS))
	assert.Equal(t, px[:], last.Data[0:4])
}

func TestTestSourceRejectsFormats(t *testing.T) {
	ctx := context.Background()
	src := NewTestSource("src", fastSourceOptions())

	err := src.SetFormat(ctx, bgrx(8, 8).WithFormat(format.PixelFormatGray8))
	assert.ErrorIs(t, err, ErrNoCommonFormat)
	assert.ErrorIs(t, src.SetFormat(ctx, bgrx(-1, 8)), ErrInvalidFormat)
	assert.ErrorIs(t, src.SetFormat(ctx, bgrx(format.MaxDimension, format.MaxDimension)), format.ErrDimensionTooLarge)
	assert.Equal(t, StateUnconfigured, src.State())
}

func TestTestSourceCaps(t *testing.T) {
	src := NewTestSource("src", fastSourceOptions())

	assert.Equal(t, SourceCaps(), src.TransformCaps(format.DirectionSrc, nil, nil))

	filter := format.Set{format.FromDescriptor(bgrx(320, 240))}
	caps := src.TransformCaps(format.DirectionSrc, nil, filter)
	require.Len(t, caps, 1)
	assert.True(t, caps.Contains(bgrx(320, 240)))

	gray := format.Set{format.FromDescriptor(bgrx(320, 240).WithFormat(format.PixelFormatGray8))}
	assert.True(t, src.TransformCaps(format.DirectionSrc, nil, gray).Empty())
}

func TestTestSourceRenegotiationRestartsPacing(t *testing.T) {
	ctx := context.Background()
	src := NewTestSource("src", fastSourceOptions())
	require.NoError(t, src.SetFormat(ctx, bgrx(4, 4)))

	for i := 0; i < 5; i++ {
		f, err := src.Produce(ctx)
		require.NoError(t, err)
		require.NoError(t, f.Release())
	}
	require.Equal(t, StateStreaming, src.State())

	d := bgrx(8, 2)
	d.FrameRate = format.Fraction{Num: 25, Den: 1}
	require.NoError(t, src.SetFormat(ctx, d))
	assert.Equal(t, StateConfigured, src.State())
	assert.Zero(t, src.Pacer().Frames())

	f, err := src.Produce(ctx)
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, 40*time.Millisecond, f.PTS)
	assert.Equal(t, 8, f.Geometry.Width)
}

func TestTestSourceHonorsContext(t *testing.T) {
	src := NewTestSource("src", SourceOptions{})
	require.NoError(t, src.SetFormat(context.Background(), format.Descriptor{
		Format: format.PixelFormatBGRx, Width: 2, Height: 2, FrameRate: format.Fraction{Num: 1, Den: 1},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Produce(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, src.Stop(context.Background()))
	_, err = src.Produce(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}
