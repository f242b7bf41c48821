package pacing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/framegen/format"
)

// MockTimeProvider is a manually advanced clock.
type MockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockTimeProvider() *MockTimeProvider {
	return &MockTimeProvider{now: time.Unix(1700000000, 0)}
}

func (m *MockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockTimeProvider) Since(t time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now.Sub(t)
}

func (m *MockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

var rate30 = format.Fraction{Num: 30, Den: 1}

func TestPeriodMicros(t *testing.T) {
	tests := []struct {
		rate format.Fraction
		want int64
	}{
		{rate30, 33333},
		{format.Fraction{Num: 25, Den: 1}, 40000},
		{format.Fraction{Num: 30000, Den: 1001}, 33366},
		{format.Fraction{Num: 0, Den: 1}, 0},
		{format.Fraction{Num: 30, Den: 0}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PeriodMicros(tt.rate), "rate %s", tt.rate)
	}
}

func TestNextDelayOnSchedule(t *testing.T) {
	clock := NewMockTimeProvider()
	p := NewPacer(rate30, WithTimeProvider(clock))

	assert.Equal(t, 33333*time.Microsecond, p.NextDelay())
	assert.Equal(t, uint64(1), p.Frames())
	assert.Equal(t, 33333*time.Microsecond, p.Scheduled())
}

func TestNextDelayCompensatesOversleep(t *testing.T) {
	clock := NewMockTimeProvider()
	p := NewPacer(rate30, WithTimeProvider(clock))

	clock.Advance(p.NextDelay() + 10*time.Millisecond)

	// Woke at 43.333ms; the next frame is still due at 66.666ms.
	assert.Equal(t, 23333*time.Microsecond, p.NextDelay())
}

func TestNextDelayIsZeroWhenBehind(t *testing.T) {
	clock := NewMockTimeProvider()
	p := NewPacer(rate30, WithTimeProvider(clock))

	clock.Advance(500 * time.Millisecond)
	for i := 0; i < 10; i++ {
		assert.Zero(t, p.NextDelay(), "frame %d", i)
	}
}

func TestNextDelayIsCapped(t *testing.T) {
	clock := NewMockTimeProvider()
	slow := format.Fraction{Num: 1, Den: 10}
	p := NewPacer(slow, WithTimeProvider(clock))

	assert.Equal(t, DefaultMaxDelay, p.NextDelay())
	assert.Equal(t, 10*time.Second, p.Scheduled())

	capped := NewPacer(rate30, WithTimeProvider(clock), WithMaxDelay(5*time.Millisecond))
	assert.Equal(t, 5*time.Millisecond, capped.NextDelay())
}

func TestZeroRateDisablesPacing(t *testing.T) {
	clock := NewMockTimeProvider()
	p := NewPacer(format.Fraction{Num: 0, Den: 1}, WithTimeProvider(clock))

	for i := 0; i < 5; i++ {
		assert.Zero(t, p.NextDelay())
	}
	assert.Zero(t, p.Period())
	assert.Equal(t, uint64(5), p.Frames())
}

func TestNinetyFramesTakeThreeSeconds(t *testing.T) {
	clock := NewMockTimeProvider()
	p := NewPacer(rate30, WithTimeProvider(clock))

	// Every wake is 2ms late and every frame costs 1ms of work.
	for i := 0; i < 90; i++ {
		clock.Advance(p.NextDelay() + 2*time.Millisecond)
		clock.Advance(time.Millisecond)
	}

	assert.InDelta(t, 3.0, p.Elapsed().Seconds(), 0.01)
	assert.InDelta(t, 3.0, p.Scheduled().Seconds(), 0.001)
}

func TestDriftDoesNotAccumulate(t *testing.T) {
	clock := NewMockTimeProvider()
	p := NewPacer(rate30, WithTimeProvider(clock))

	for i := 0; i < 300; i++ {
		clock.Advance(p.NextDelay() + 3*time.Millisecond)
	}

	// A chain of sleeps would be 300*3ms = 900ms late; the schedule keeps
	// the error to a single wake's lateness.
	lateness := p.Elapsed() - p.Scheduled()
	assert.LessOrEqual(t, lateness, 3*time.Millisecond)
}

func TestRestartAndSetRate(t *testing.T) {
	clock := NewMockTimeProvider()
	p := NewPacer(rate30, WithTimeProvider(clock))

	for i := 0; i < 3; i++ {
		p.NextDelay()
	}
	clock.Advance(time.Second)

	p.Restart()
	assert.Zero(t, p.Frames())
	assert.Zero(t, p.Scheduled())
	assert.Zero(t, p.Elapsed())
	assert.Equal(t, 33333*time.Microsecond, p.NextDelay())

	p.SetRate(format.Fraction{Num: 25, Den: 1})
	assert.Equal(t, 40*time.Millisecond, p.Period())
	assert.Equal(t, 40*time.Millisecond, p.NextDelay())
}

func TestWaitHonorsContext(t *testing.T) {
	p := NewPacer(format.Fraction{Num: 1, Den: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitReturnsImmediatelyWhenUnpaced(t *testing.T) {
	p := NewPacer(format.Fraction{Num: 0, Den: 1})
	assert.NoError(t, p.Wait(context.Background()))
}
