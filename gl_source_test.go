package framegen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/gpu"
	"github.com/opd-ai/framegen/video"
)

func newTestGLSource(t *testing.T, mode OutputMode) (*GLSource, chan *gpu.SoftwareContext) {
	t.Helper()
	created := make(chan *gpu.SoftwareContext, 1)
	src := NewGLSource("gl", GLSourceOptions{
		SourceOptions: fastSourceOptions(),
		Factory:       gpu.SoftwareFactory(gpu.SoftwareOptions{}, created),
		Output:        mode,
		Template:      SourceCaps(),
	})
	t.Cleanup(func() {
		_ = src.Stop(context.Background())
	})
	return src, created
}

func TestGLSourceEndToEndSurfaceMode(t *testing.T) {
	ctx := context.Background()
	src, created := newTestGLSource(t, OutputSurface)

	require.NoError(t, src.SetFormat(ctx, bgrx(64, 64)))
	require.NoError(t, src.Start(ctx))
	device := <-created
	sc := src.SwapChain()
	require.NotNil(t, sc)
	assert.Equal(t, gpu.Size{Width: 64, Height: 64}, sc.Size())

	var lastGen uint64
	for i := 0; i < 90; i++ {
		frame, err := src.Produce(ctx)
		require.NoError(t, err)
		require.NotNil(t, frame, "frame %d", i)
		require.True(t, frame.IsSurface())
		assert.LessOrEqual(t, sc.CheckedOut(), 1)

		surface := frame.Handle.(*gpu.Surface)
		assert.Greater(t, surface.Generation(), lastGen)
		lastGen = surface.Generation()
		require.NoError(t, frame.Release())
	}

	pacer := src.Pacer()
	assert.Equal(t, uint64(90), pacer.Frames())
	assert.InDelta(t, 3.0, pacer.Scheduled().Seconds(), (33333 * time.Microsecond).Seconds())
	assert.Equal(t, StateStreaming, src.State())

	stats := sc.Stats()
	assert.Equal(t, int64(90), stats.Presented)
	assert.Equal(t, int64(90), stats.Taken)
	assert.Zero(t, stats.Dropped)
	assert.Equal(t, int64(1), device.Stats().Allocations)

	require.NoError(t, src.Stop(ctx))
	assert.Zero(t, device.Stats().Live)
	assert.Equal(t, StateStopped, src.State())
}

func TestGLSourceSurfaceModeNeverBlocks(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestGLSource(t, OutputSurface)
	require.NoError(t, src.SetFormat(ctx, bgrx(16, 16)))
	require.NoError(t, src.Start(ctx))

	held, err := src.Produce(ctx)
	require.NoError(t, err)
	require.NotNil(t, held)

	// The consumer still holds a surface, so later frames are not handed out.
	for i := 0; i < 3; i++ {
		frame, err := src.Produce(ctx)
		require.NoError(t, err)
		assert.Nil(t, frame)
	}

	// A rate-only renegotiation needs no resize.
	faster := bgrx(16, 16)
	faster.FrameRate = format.Fraction{Num: 60, Den: 1}
	require.NoError(t, src.SetFormat(ctx, faster))
	assert.Equal(t, 1, src.SwapChain().CheckedOut())

	assert.ErrorIs(t, src.SetFormat(ctx, bgrx(32, 32)), gpu.ErrSurfaceCheckedOut)
	require.NoError(t, held.Release())
	require.NoError(t, src.SetFormat(ctx, bgrx(32, 32)))
	assert.Equal(t, gpu.Size{Width: 32, Height: 32}, src.SwapChain().Size())
}

func TestGLSourceReadbackMatchesCPUSource(t *testing.T) {
	ctx := context.Background()
	gl, _ := newTestGLSource(t, OutputReadback)
	cpu := NewTestSource("cpu", fastSourceOptions())

	require.NoError(t, gl.Start(ctx))
	require.NoError(t, gl.SetFormat(ctx, bgrx(24, 8)))
	require.NoError(t, cpu.SetFormat(ctx, bgrx(24, 8)))

	for i := 0; i < 20; i++ {
		a, err := gl.Produce(ctx)
		require.NoError(t, err)
		b, err := cpu.Produce(ctx)
		require.NoError(t, err)

		assert.False(t, a.IsSurface())
		assert.Equal(t, b.PTS, a.PTS)
		assert.Equal(t, b.Digest(), a.Digest(), "frame %d", i)

		require.NoError(t, a.Release())
		require.NoError(t, b.Release())
	}
}

func TestGLSourceTexture(t *testing.T) {
	ctx := context.Background()
	tex := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			tex.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	src := NewGLSource("gl", GLSourceOptions{
		SourceOptions: fastSourceOptions(),
		Texture:       tex,
		Template:      SourceCaps(),
	})
	defer src.Stop(ctx)

	require.NoError(t, src.SetFormat(ctx, bgrx(8, 8)))
	require.NoError(t, src.Start(ctx))

	frame, err := src.Produce(ctx)
	require.NoError(t, err)
	defer frame.Release()
	assert.Equal(t, []byte{255, 0, 0, 255}, frame.Data[0:4])
}

func TestGLSourceStateErrors(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestGLSource(t, OutputReadback)

	_, err := src.Produce(ctx)
	assert.ErrorIs(t, err, ErrNotNegotiated)

	require.NoError(t, src.SetFormat(ctx, bgrx(8, 8)))
	_, err = src.Produce(ctx)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, src.Start(ctx))
	require.NoError(t, src.Start(ctx), "second start is a no-op")
	require.NoError(t, src.Stop(ctx))

	_, err = src.Produce(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, src.Start(ctx), ErrInvalidState)
	assert.ErrorIs(t, src.SetFormat(ctx, bgrx(8, 8)), ErrInvalidState)
	assert.NoError(t, src.Stop(ctx))
}

func TestGLSourceDefaultTemplate(t *testing.T) {
	ctx := context.Background()
	src := NewGLSource("gl", GLSourceOptions{SourceOptions: fastSourceOptions()})
	defer src.Stop(ctx)

	assert.ErrorIs(t, src.SetFormat(ctx, bgrx(64, 64)), ErrNoCommonFormat)

	require.NoError(t, src.Start(ctx))
	assert.Equal(t, gpu.Size{Width: 512, Height: 512}, src.SwapChain().Size())

	d := format.Descriptor{Format: format.PixelFormatBGRx, Width: 640, Height: 512, FrameRate: format.Fraction{Num: 60, Den: 1}}
	require.NoError(t, src.SetFormat(ctx, d))
	assert.Equal(t, gpu.Size{Width: 640, Height: 512}, src.SwapChain().Size())
}

func TestGLSourceWorkerFaultIsTerminal(t *testing.T) {
	ctx := context.Background()
	src := NewGLSource("gl", GLSourceOptions{
		SourceOptions: fastSourceOptions(),
		Factory:       gpu.SoftwareFactory(gpu.SoftwareOptions{MaxSurfaces: 1}, nil),
		Template:      SourceCaps(),
	})
	defer src.Stop(ctx)
	var reported []error
	src.OnError(func(err error) { reported = append(reported, err) })

	require.NoError(t, src.SetFormat(ctx, bgrx(8, 8)))
	require.NoError(t, src.Start(ctx))

	var err error
	for i := 0; i < 3 && err == nil; i++ {
		var f *video.Frame
		f, err = src.Produce(ctx)
		if f != nil {
			require.NoError(t, f.Release())
		}
	}
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Equal(t, KindWorkerFault, Classify(err))
	require.NotEmpty(t, reported)
	assert.True(t, errors.Is(reported[len(reported)-1], ErrWorkerFault))

	_, err = src.Produce(ctx)
	assert.ErrorIs(t, err, ErrWorkerFault)
	assert.NoError(t, src.Stop(ctx))
}

func TestParseOutputMode(t *testing.T) {
	m, err := ParseOutputMode("Surface")
	require.NoError(t, err)
	assert.Equal(t, OutputSurface, m)

	m, err = ParseOutputMode("")
	require.NoError(t, err)
	assert.Equal(t, OutputReadback, m)

	_, err = ParseOutputMode("texture")
	assert.Error(t, err)
}
