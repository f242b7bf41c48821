package video

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
)

// Pool recycles frame buffers so the steady-state streaming path does not
// allocate. Buffers are bucketed by geometry size; a renegotiation simply
// starts a new bucket.
type Pool struct {
	mu      sync.Mutex
	buckets map[int]*sync.Pool

	// Atomic counters for lock-free statistics
	allocated int64
	gets      int64
	puts      int64
}

// PoolStats reports buffer pool activity.
type PoolStats struct {
	Allocated int64
	Gets      int64
	Puts      int64
}

// NewPool creates an empty buffer pool.
func NewPool() *Pool {
	return &Pool{buckets: make(map[int]*sync.Pool)}
}

func (p *Pool) bucket(size int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[size]
	if !ok {
		b = &sync.Pool{New: func() interface{} {
			atomic.AddInt64(&p.allocated, 1)
			buf := make([]byte, size)
			return &buf
		}}
		p.buckets[size] = b

		logrus.WithFields(logrus.Fields{
			"function": "Pool.bucket",
			"size":     size,
			"buckets":  len(p.buckets),
		}).Debug("Created frame buffer bucket")
	}
	return b
}

// Get returns a frame sized for geo. Releasing the frame returns its buffer
// to the pool. Buffer contents are unspecified.
func (p *Pool) Get(geo format.Geometry) *Frame {
	atomic.AddInt64(&p.gets, 1)
	b := p.bucket(geo.Size)
	bufPtr := b.Get().(*[]byte)

	f := NewFrame(geo, (*bufPtr)[:geo.Size])
	f.SetRelease(func() error {
		atomic.AddInt64(&p.puts, 1)
		b.Put(bufPtr)
		return nil
	})
	return f
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Allocated: atomic.LoadInt64(&p.allocated),
		Gets:      atomic.LoadInt64(&p.gets),
		Puts:      atomic.LoadInt64(&p.puts),
	}
}
