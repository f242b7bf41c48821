package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSwapChain(t *testing.T) (*SwapChain, *SoftwareContext) {
	t.Helper()
	device := NewSoftwareContext(SoftwareOptions{})
	sc, err := CreateSwapChain(device, Size{Width: 4, Height: 4}, 0)
	require.NoError(t, err)
	return sc, device
}

// produce draws and presents one frame the way the worker does.
func produce(t *testing.T, sc *SwapChain, device Context) Surface {
	t.Helper()
	slot, h, err := sc.acquire(device)
	require.NoError(t, err)
	require.NoError(t, device.BindRenderTarget(h))
	require.NoError(t, device.Clear(pulseClear([4]byte{1, 2, 3, 0})))
	s, err := sc.present(slot)
	require.NoError(t, err)
	return s
}

func TestCreateSwapChainAllocatesFirstSurface(t *testing.T) {
	sc, device := newTestSwapChain(t)

	assert.Equal(t, DefaultSwapChainDepth, sc.Capacity())
	assert.Equal(t, int64(1), sc.Stats().Allocations)
	assert.Equal(t, int64(1), device.Stats().Live)

	_, ok := sc.TakeSurface()
	assert.False(t, ok, "nothing presented yet")
}

func TestCreateSwapChainExhausted(t *testing.T) {
	device := NewSoftwareContext(SoftwareOptions{MaxSurfaces: 1})
	_, err := device.CreateSurface(Size{Width: 1, Height: 1})
	require.NoError(t, err)

	_, err = CreateSwapChain(device, Size{Width: 4, Height: 4}, 2)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	_, err = CreateSwapChain(device, Size{}, 2)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestTakeReturnsNewestFrame(t *testing.T) {
	sc, device := newTestSwapChain(t)

	produce(t, sc, device)
	newest := produce(t, sc, device)

	s, ok := sc.TakeSurface()
	require.True(t, ok)
	assert.Equal(t, newest.Generation(), s.Generation())
	assert.Equal(t, uint64(2), s.Generation())
	assert.Equal(t, int64(1), sc.Stats().Dropped, "first frame was never taken")
}

func TestAtMostOneCheckedOut(t *testing.T) {
	sc, device := newTestSwapChain(t)

	produce(t, sc, device)
	held, ok := sc.TakeSurface()
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		produce(t, sc, device)
		_, ok := sc.TakeSurface()
		assert.False(t, ok, "second checkout refused")
		assert.Equal(t, 1, sc.CheckedOut())

		inFlight := 0
		for _, st := range sc.slotStates() {
			if st == SlotInFlight {
				inFlight++
			}
		}
		assert.LessOrEqual(t, inFlight, 1)
	}

	require.NoError(t, sc.RecycleSurface(held))
	assert.Zero(t, sc.CheckedOut())

	s, ok := sc.TakeSurface()
	require.True(t, ok)
	assert.Equal(t, uint64(6), s.Generation())
}

func TestRecycleCyclesDoNotLeak(t *testing.T) {
	run := func(cycles int) (SwapChainStats, SoftwareStats) {
		sc, device := newTestSwapChain(t)
		for i := 0; i < cycles; i++ {
			produce(t, sc, device)
			s, ok := sc.TakeSurface()
			require.True(t, ok)
			require.NoError(t, sc.RecycleSurface(s))
		}
		return sc.Stats(), device.Stats()
	}

	short, shortDev := run(10)
	long, longDev := run(1000)

	assert.Equal(t, short.Allocations, long.Allocations)
	assert.Equal(t, shortDev.Allocations, longDev.Allocations)
	assert.Equal(t, int64(1000), long.Taken)
	assert.Zero(t, long.Dropped)
}

func TestRecycleRejectsStaleSurfaces(t *testing.T) {
	sc, device := newTestSwapChain(t)

	produce(t, sc, device)
	s, ok := sc.TakeSurface()
	require.True(t, ok)

	assert.ErrorIs(t, sc.Resize(device, Size{Width: 8, Height: 8}), ErrSurfaceCheckedOut)
	assert.Equal(t, Size{Width: 4, Height: 4}, sc.Size())

	require.NoError(t, sc.RecycleSurface(s))
	assert.ErrorIs(t, sc.RecycleSurface(s), ErrNotCheckedOut, "double recycle")
	assert.ErrorIs(t, sc.RecycleSurface(nil), ErrNotCheckedOut)

	require.NoError(t, sc.Resize(device, Size{Width: 8, Height: 8}))
	assert.Zero(t, sc.Stats().Live, "surfaces reallocate lazily")

	produce(t, sc, device)
	fresh, ok := sc.TakeSurface()
	require.True(t, ok)
	assert.Equal(t, Size{Width: 8, Height: 8}, fresh.Size())
	assert.NotEqual(t, s.ID(), fresh.ID())
	assert.ErrorIs(t, sc.RecycleSurface(s), ErrNotCheckedOut, "pre-resize surface is stale")
	require.NoError(t, sc.RecycleSurface(fresh))
}

func TestAcquireReclaimsPendingFrame(t *testing.T) {
	sc, device := newTestSwapChain(t)

	produce(t, sc, device)
	held, ok := sc.TakeSurface()
	require.True(t, ok)
	produce(t, sc, device)

	// One slot is checked out, the other holds an untaken frame.
	third := produce(t, sc, device)
	assert.Equal(t, int64(1), sc.Stats().Dropped)
	assert.Equal(t, int64(2), sc.Stats().Allocations)

	require.NoError(t, sc.RecycleSurface(held))
	s, ok := sc.TakeSurface()
	require.True(t, ok)
	assert.Equal(t, third.Generation(), s.Generation())
}

func TestDestroy(t *testing.T) {
	sc, device := newTestSwapChain(t)

	produce(t, sc, device)
	produce(t, sc, device)
	s, ok := sc.TakeSurface()
	require.True(t, ok)

	require.NoError(t, sc.Destroy(device))
	assert.ErrorIs(t, sc.Destroy(device), ErrSwapChainDestroyed)
	assert.Zero(t, device.Stats().Live)
	assert.Zero(t, sc.Stats().Live)

	assert.ErrorIs(t, sc.RecycleSurface(s), ErrSwapChainDestroyed)
	_, ok = sc.TakeSurface()
	assert.False(t, ok)
	_, _, err := sc.acquire(device)
	assert.ErrorIs(t, err, ErrSwapChainDestroyed)
	assert.ErrorIs(t, sc.Resize(device, Size{Width: 2, Height: 2}), ErrSwapChainDestroyed)
}

func TestSlotStateString(t *testing.T) {
	assert.Equal(t, "free", SlotFree.String())
	assert.Equal(t, "checked-out", SlotCheckedOut.String())
	assert.Equal(t, "unknown", SlotState(99).String())
}

func TestResizeToSameSizeWhileCheckedOut(t *testing.T) {
	sc, device := newTestSwapChain(t)

	produce(t, sc, device)
	s, ok := sc.TakeSurface()
	require.True(t, ok)

	require.NoError(t, sc.Resize(device, Size{Width: 4, Height: 4}))
	assert.Equal(t, int64(1), sc.Stats().Live, "nothing reallocated")
	require.NoError(t, sc.RecycleSurface(s))
}

func TestAbandonFreesSlot(t *testing.T) {
	sc, device := newTestSwapChain(t)

	slot, _, err := sc.acquire(device)
	require.NoError(t, err)
	assert.Contains(t, sc.slotStates(), SlotInUse)

	sc.abandon(slot)
	assert.NotContains(t, sc.slotStates(), SlotInUse)

	again, _, err := sc.acquire(device)
	require.NoError(t, err)
	assert.Equal(t, slot, again, "allocated slot reused")
	assert.Equal(t, int64(1), sc.Stats().Allocations)

	sc.abandon(-1)
	sc.abandon(len(sc.slotStates()))
}
