// Package pacing schedules frame production at a fixed frame rate without
// accumulating drift.
//
// A Pacer keeps a running total of scheduled stream time. Every NextDelay call
// adds one frame period to the total and compares it with the wall-clock time
// elapsed since the stream started. Because the schedule is a sum of periods
// and never a chain of sleeps, oversleeping on one frame shortens the wait for
// the next instead of pushing every later frame back.
package pacing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
)

// DefaultMaxDelay caps a single wait so a clock jump cannot stall a stream.
const DefaultMaxDelay = time.Second

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// Pacer computes how long the producer waits before the next frame is due.
//
// NextDelay is safe for concurrent use, but a stream is normally paced from
// the single goroutine calling Produce.
type Pacer struct {
	mu       sync.RWMutex
	start    time.Time
	periodUS int64
	maxDelay time.Duration
	clock    TimeProvider

	scheduledUS atomic.Int64
	frames      atomic.Uint64
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithTimeProvider injects the clock, mainly for tests.
func WithTimeProvider(tp TimeProvider) Option {
	return func(p *Pacer) {
		if tp != nil {
			p.clock = tp
		}
	}
}

// WithMaxDelay overrides the per-call delay cap. Non-positive values keep
// the default.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Pacer) {
		if d > 0 {
			p.maxDelay = d
		}
	}
}

// NewPacer creates a pacer for rate, starting the stream clock now. A rate
// with a zero numerator or a non-positive denominator disables pacing.
func NewPacer(rate format.Fraction, opts ...Option) *Pacer {
	p := &Pacer{
		maxDelay: DefaultMaxDelay,
		clock:    DefaultTimeProvider{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.periodUS = PeriodMicros(rate)
	p.start = p.clock.Now()

	logrus.WithFields(logrus.Fields{
		"function":  "NewPacer",
		"rate":      rate.String(),
		"period_us": p.periodUS,
		"max_delay": p.maxDelay,
	}).Debug("Frame pacer created")

	return p
}

// PeriodMicros returns the frame period of rate in microseconds, or 0 when
// the rate does not describe a fixed cadence.
func PeriodMicros(rate format.Fraction) int64 {
	if rate.Num <= 0 || rate.Den <= 0 {
		return 0
	}
	return int64(time.Second/time.Microsecond) * int64(rate.Den) / int64(rate.Num)
}

// NextDelay schedules one more frame and returns how long to wait before
// producing it. The result is zero when the caller is already late and never
// exceeds the configured cap.
func (p *Pacer) NextDelay() time.Duration {
	p.mu.RLock()
	start, period, maxDelay := p.start, p.periodUS, p.maxDelay
	p.mu.RUnlock()

	p.frames.Add(1)
	scheduled := time.Duration(p.scheduledUS.Add(period)) * time.Microsecond
	elapsed := p.clock.Since(start)

	if scheduled <= elapsed {
		return 0
	}
	return min(scheduled-elapsed, maxDelay)
}

// Wait blocks for NextDelay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	delay := p.NextDelay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Restart resets the stream clock and the schedule, as on a stream restart.
func (p *Pacer) Restart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restartLocked()
}

// SetRate switches to a new frame rate. The schedule restarts because the
// old running total was measured in the old period.
func (p *Pacer) SetRate(rate format.Fraction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.periodUS = PeriodMicros(rate)
	p.restartLocked()

	logrus.WithFields(logrus.Fields{
		"function":  "Pacer.SetRate",
		"rate":      rate.String(),
		"period_us": p.periodUS,
	}).Debug("Frame pacer rate changed")
}

func (p *Pacer) restartLocked() {
	p.start = p.clock.Now()
	p.scheduledUS.Store(0)
	p.frames.Store(0)
}

// Frames returns how many frames have been scheduled since the last restart.
func (p *Pacer) Frames() uint64 {
	return p.frames.Load()
}

// Scheduled returns the stream time of the most recently scheduled frame.
func (p *Pacer) Scheduled() time.Duration {
	return time.Duration(p.scheduledUS.Load()) * time.Microsecond
}

// Elapsed returns the wall-clock time since the stream started.
func (p *Pacer) Elapsed() time.Duration {
	p.mu.RLock()
	start := p.start
	p.mu.RUnlock()
	return p.clock.Since(start)
}

// Period returns the frame period.
func (p *Pacer) Period() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.periodUS) * time.Microsecond
}
