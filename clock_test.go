package framegen

import (
	"sync"
	"time"

	"github.com/opd-ai/framegen/format"
)

// steppingClock advances by step on every Since call, so a paced producer
// never sleeps while its schedule still advances one period per frame.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newSteppingClock(step time.Duration) *steppingClock {
	return &steppingClock{now: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), step: step}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now.Sub(t)
}

var rate30 = format.Fraction{Num: 30, Den: 1}

func bgrx(w, h int) format.Descriptor {
	return format.Descriptor{Format: format.PixelFormatBGRx, Width: w, Height: h, FrameRate: rate30}
}

// fastSourceOptions paces at 30/1 without sleeping.
func fastSourceOptions() SourceOptions {
	return SourceOptions{Clock: newSteppingClock(34 * time.Millisecond)}
}
