// ABOUTME: Queue-backed producer and channel-backed consumer for network clients
// ABOUTME: Bridges goroutines that push or pull audio with the cycle loop
package hal

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// StreamProducer is a bounded FIFO of interleaved samples. Push blocks while
// the queue is full, so a network reader is paced by the cycle loop.
type StreamProducer struct {
	channels int
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []float32
	closed bool

	underruns atomic.Uint64
}

// NewStreamProducer creates a producer holding up to capacityFrames frames
func NewStreamProducer(channels, capacityFrames int) *StreamProducer {
	p := &StreamProducer{channels: channels, capacity: capacityFrames * channels}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Push appends samples, blocking until there is room, ctx ends or the producer closes
func (p *StreamProducer) Push(ctx context.Context, samples []float32) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(samples) > 0 {
		for !p.closed && ctx.Err() == nil && len(p.buf) >= p.capacity {
			p.cond.Wait()
		}
		if p.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(samples), p.capacity-len(p.buf))
		p.buf = append(p.buf, samples[:n]...)
		samples = samples[n:]
	}
	return nil
}

// Produce implements Producer
func (p *StreamProducer) Produce(dst []float32) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Whole frames only
	n := min(len(dst), len(p.buf))
	n -= n % p.channels
	copy(dst, p.buf[:n])
	p.buf = p.buf[:copy(p.buf, p.buf[n:])]
	if n < len(dst) && !p.closed {
		p.underruns.Add(1)
	}
	p.cond.Broadcast()
	return n / p.channels
}

// Buffered returns the number of queued frames
func (p *StreamProducer) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf) / p.channels
}

// Underruns counts cycles that found the queue short
func (p *StreamProducer) Underruns() uint64 {
	return p.underruns.Load()
}

// Close wakes blocked pushers; queued samples still drain
func (p *StreamProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}

// TapCycle is one delivered cycle. Skipped counts the samples of the cycles
// dropped immediately before it.
type TapCycle struct {
	Samples []float32
	Skipped int
}

// Tap is a Consumer that copies each cycle onto a channel, dropping when the reader lags
type Tap struct {
	ch      chan TapCycle
	dropped atomic.Uint64
	closed  atomic.Bool

	// Only touched by Consume, which the cycle loop calls serially
	skipped int
}

// NewTap creates a tap buffering up to depth cycles
func NewTap(depth int) *Tap {
	return &Tap{ch: make(chan TapCycle, depth)}
}

// Consume implements Consumer
func (t *Tap) Consume(src []float32) {
	if t.closed.Load() {
		return
	}
	select {
	case t.ch <- TapCycle{Samples: slices.Clone(src), Skipped: t.skipped}:
		t.skipped = 0
	default:
		t.dropped.Add(1)
		t.skipped += len(src)
	}
}

// C returns the channel of cycles
func (t *Tap) C() <-chan TapCycle {
	return t.ch
}

// Dropped counts cycles the reader missed
func (t *Tap) Dropped() uint64 {
	return t.dropped.Load()
}

// Close stops delivery. Call after the tap is detached from the host.
func (t *Tap) Close() {
	if t.closed.CompareAndSwap(false, true) {
		close(t.ch)
	}
}
