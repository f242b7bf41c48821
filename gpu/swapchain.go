package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultSwapChainDepth is the number of surfaces in a swap chain: one being
// drawn while the consumer reads the other.
const DefaultSwapChainDepth = 2

// SlotState is the ownership state of one swap chain slot.
type SlotState int

const (
	// SlotFree is available for the next frame.
	SlotFree SlotState = iota
	// SlotInUse is being drawn by the worker.
	SlotInUse
	// SlotInFlight holds the most recently completed frame.
	SlotInFlight
	// SlotCheckedOut is held by the consumer.
	SlotCheckedOut
)

// String returns a human-readable representation of the slot state.
func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotInUse:
		return "in-use"
	case SlotInFlight:
		return "in-flight"
	case SlotCheckedOut:
		return "checked-out"
	default:
		return "unknown"
	}
}

// Surface identifies one completed frame handed to the consumer. The value
// is a snapshot; the swap chain recognizes it on recycle by slot, identity
// and generation.
type Surface struct {
	handle     SurfaceHandle
	id         uint64
	generation uint64
	size       Size
	slot       int
}

// Handle returns the device handle of the surface.
func (s *Surface) Handle() SurfaceHandle { return s.handle }

// ID returns the allocation identity of the surface. A reallocated slot gets
// a new identity.
func (s *Surface) ID() uint64 { return s.id }

// Generation returns the frame number the surface was presented as.
func (s *Surface) Generation() uint64 { return s.generation }

// Size returns the surface size.
func (s *Surface) Size() Size { return s.size }

type slot struct {
	state      SlotState
	allocated  bool
	handle     SurfaceHandle
	id         uint64
	generation uint64
}

// SwapChainStats reports swap chain activity.
type SwapChainStats struct {
	// Allocations is the number of surfaces ever created.
	Allocations int64
	// Live is the number of surfaces currently allocated.
	Live int64
	// Presented is the number of completed frames.
	Presented int64
	// Dropped counts completed frames replaced before the consumer took them.
	Dropped int64
	// Taken counts successful TakeSurface calls.
	Taken int64
}

// SwapChain is a small ring of surfaces exchanged between the render worker
// and a consumer.
//
// TakeSurface and RecycleSurface are the consumer side and may be called from
// any goroutine. Every method taking a Context is worker-only: it issues
// device calls and must run on the goroutine that owns the context.
type SwapChain struct {
	mu         sync.Mutex
	size       Size
	slots      []slot
	nextID     uint64
	generation uint64
	destroyed  bool
	checkedOut int
	stats      SwapChainStats
}

// CreateSwapChain creates a swap chain of capacity surfaces of size and
// allocates the first one. A capacity below DefaultSwapChainDepth is raised to
// it. Allocation failure wraps ErrResourceExhausted.
func CreateSwapChain(ctx Context, size Size, capacity int) (*SwapChain, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSize, size)
	}
	if capacity < DefaultSwapChainDepth {
		capacity = DefaultSwapChainDepth
	}

	sc := &SwapChain{
		size:       size,
		slots:      make([]slot, capacity),
		checkedOut: -1,
	}
	if err := sc.allocate(ctx, 0); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreateSwapChain",
		"size":     size.String(),
		"capacity": capacity,
	}).Debug("Swap chain created")

	return sc, nil
}

// allocate creates the surface for slot i. Callers hold mu or own sc
// exclusively.
func (sc *SwapChain) allocate(ctx Context, i int) error {
	h, err := ctx.CreateSurface(sc.size)
	if err != nil {
		if !errors.Is(err, ErrResourceExhausted) {
			err = fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		return fmt.Errorf("allocate %s surface: %w", sc.size, err)
	}
	sc.nextID++
	sc.slots[i] = slot{state: SlotFree, allocated: true, handle: h, id: sc.nextID}
	sc.stats.Allocations++
	sc.stats.Live++
	return nil
}

// release destroys the surface of slot i, leaving the slot free and empty.
func (sc *SwapChain) release(ctx Context, i int) error {
	s := &sc.slots[i]
	if !s.allocated {
		s.state = SlotFree
		return nil
	}
	err := ctx.DestroySurface(s.handle)
	*s = slot{state: SlotFree}
	sc.stats.Live--
	if err != nil {
		return fmt.Errorf("destroy surface: %w", err)
	}
	return nil
}

// TakeSurface checks out the most recently completed surface. It never
// blocks: false means nothing is ready or the consumer already holds one.
func (sc *SwapChain) TakeSurface() (*Surface, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.destroyed || sc.checkedOut >= 0 {
		return nil, false
	}

	best := -1
	for i := range sc.slots {
		if sc.slots[i].state != SlotInFlight {
			continue
		}
		if best < 0 || sc.slots[i].generation > sc.slots[best].generation {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}

	s := &sc.slots[best]
	s.state = SlotCheckedOut
	sc.checkedOut = best
	sc.stats.Taken++

	return &Surface{
		handle:     s.handle,
		id:         s.id,
		generation: s.generation,
		size:       sc.size,
		slot:       best,
	}, true
}

// RecycleSurface returns a checked-out surface to the free list.
func (sc *SwapChain) RecycleSurface(surface *Surface) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.destroyed {
		return ErrSwapChainDestroyed
	}
	if surface == nil || surface.slot != sc.checkedOut || sc.checkedOut < 0 {
		return sc.stale(surface)
	}
	s := &sc.slots[surface.slot]
	if s.state != SlotCheckedOut || s.id != surface.id || s.generation != surface.generation {
		return sc.stale(surface)
	}

	s.state = SlotFree
	sc.checkedOut = -1
	return nil
}

func (sc *SwapChain) stale(surface *Surface) error {
	fields := logrus.Fields{"function": "SwapChain.RecycleSurface"}
	if surface != nil {
		fields["surface_id"] = surface.id
		fields["generation"] = surface.generation
	}
	logrus.WithFields(fields).Warn("Recycled surface is not checked out")
	return ErrNotCheckedOut
}

// Resize changes the surface size. Free and in-flight surfaces are destroyed
// and reallocated lazily; a pending completed frame is discarded. The current
// size is a no-op; any other size fails with ErrSurfaceCheckedOut while the
// consumer holds a surface.
func (sc *SwapChain) Resize(ctx Context, size Size) error {
	if !size.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidSize, size)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.destroyed {
		return ErrSwapChainDestroyed
	}
	if size == sc.size {
		return nil
	}
	if sc.checkedOut >= 0 {
		return fmt.Errorf("resize to %s: %w", size, ErrSurfaceCheckedOut)
	}

	var firstErr error
	for i := range sc.slots {
		if err := sc.release(ctx, i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	old := sc.size
	sc.size = size

	logrus.WithFields(logrus.Fields{
		"function": "SwapChain.Resize",
		"from":     old.String(),
		"to":       size.String(),
	}).Debug("Swap chain resized")

	return firstErr
}

// Destroy releases every surface, including one held by the consumer. It
// may be called once; a checked-out surface recycled afterwards reports
// ErrSwapChainDestroyed.
func (sc *SwapChain) Destroy(ctx Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.destroyed {
		return ErrSwapChainDestroyed
	}
	if sc.checkedOut >= 0 {
		logrus.WithFields(logrus.Fields{
			"function": "SwapChain.Destroy",
			"slot":     sc.checkedOut,
		}).Warn("Destroying swap chain with a surface checked out")
	}

	var firstErr error
	for i := range sc.slots {
		if err := sc.release(ctx, i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	sc.destroyed = true
	sc.checkedOut = -1

	logrus.WithFields(logrus.Fields{
		"function":    "SwapChain.Destroy",
		"allocations": sc.stats.Allocations,
		"presented":   sc.stats.Presented,
		"dropped":     sc.stats.Dropped,
	}).Debug("Swap chain destroyed")

	return firstErr
}

// acquire claims a slot for drawing, allocating it if needed. With no free
// slot the pending completed frame is reclaimed and counted as dropped.
func (sc *SwapChain) acquire(ctx Context) (int, SurfaceHandle, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.destroyed {
		return -1, 0, ErrSwapChainDestroyed
	}

	pick := -1
	for i := range sc.slots {
		if sc.slots[i].state != SlotFree {
			continue
		}
		if sc.slots[i].allocated {
			pick = i
			break
		}
		if pick < 0 {
			pick = i
		}
	}
	if pick < 0 {
		for i := range sc.slots {
			if sc.slots[i].state == SlotInFlight {
				pick = i
				sc.stats.Dropped++
				break
			}
		}
	}
	if pick < 0 {
		return -1, 0, fmt.Errorf("%w: no slot available", ErrSurfaceCheckedOut)
	}

	if !sc.slots[pick].allocated {
		if err := sc.allocate(ctx, pick); err != nil {
			return -1, 0, err
		}
	}
	sc.slots[pick].state = SlotInUse
	return pick, sc.slots[pick].handle, nil
}

// abandon returns slot i to the free list after a failed draw. The surface
// stays allocated.
func (sc *SwapChain) abandon(i int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.destroyed || i < 0 || i >= len(sc.slots) || sc.slots[i].state != SlotInUse {
		return
	}
	sc.slots[i].state = SlotFree
}

// present completes the frame drawn into slot i. An older completed frame the
// consumer never took goes back to the free list.
func (sc *SwapChain) present(i int) (Surface, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.destroyed {
		return Surface{}, ErrSwapChainDestroyed
	}
	if i < 0 || i >= len(sc.slots) || sc.slots[i].state != SlotInUse {
		return Surface{}, fmt.Errorf("present slot %d: not in use", i)
	}

	for j := range sc.slots {
		if j != i && sc.slots[j].state == SlotInFlight {
			sc.slots[j].state = SlotFree
			sc.stats.Dropped++
		}
	}

	sc.generation++
	s := &sc.slots[i]
	s.state = SlotInFlight
	s.generation = sc.generation
	sc.stats.Presented++

	return Surface{handle: s.handle, id: s.id, generation: s.generation, size: sc.size, slot: i}, nil
}

// Size returns the current surface size.
func (sc *SwapChain) Size() Size {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.size
}

// Capacity returns the number of slots.
func (sc *SwapChain) Capacity() int {
	return len(sc.slots)
}

// CheckedOut returns the number of surfaces held by the consumer, 0 or 1.
func (sc *SwapChain) CheckedOut() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.checkedOut >= 0 {
		return 1
	}
	return 0
}

// Stats returns a snapshot of swap chain counters.
func (sc *SwapChain) Stats() SwapChainStats {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.stats
}

// slotStates returns the state of every slot.
func (sc *SwapChain) slotStates() []SlotState {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	states := make([]SlotState, len(sc.slots))
	for i, s := range sc.slots {
		states[i] = s.state
	}
	return states
}
