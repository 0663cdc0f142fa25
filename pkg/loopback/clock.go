// ABOUTME: Virtual hardware clock producing zero timestamps on demand
// ABOUTME: Advances one period at a time, never ahead of host time, with its own lock
package loopback

import (
	"sync"
	"time"
)

// HostClock returns the current host time in ticks (nanoseconds)
type HostClock func() uint64

var hostEpoch = time.Now()

// MonotonicHostClock reads the process monotonic clock in nanoseconds
func MonotonicHostClock() uint64 {
	return uint64(time.Since(hostEpoch))
}

// Timestamp is one zero timestamp reported to the host
type Timestamp struct {
	SampleTime float64
	HostTime   uint64
	Seed       uint64
}

// Anchor is the clock synchronization point
type Anchor struct {
	HostTime      uint64
	PeriodCount   uint64
	PreviousTicks float64
}

// Clock generates (sample time, host time) pairs every period frames
type Clock struct {
	mu            sync.Mutex
	now           HostClock
	period        uint64
	ticksPerFrame float64
	anchor        Anchor
}

// NewClock creates a clock that advances in steps of period frames
func NewClock(period int, ticksPerFrame float64, now HostClock) *Clock {
	if now == nil {
		now = MonotonicHostClock
	}
	return &Clock{
		now:           now,
		period:        uint64(period),
		ticksPerFrame: ticksPerFrame,
	}
}

// Period returns the number of frames between zero timestamps
func (c *Clock) Period() int {
	return int(c.period)
}

// Reset re-anchors the clock at the current host time
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.anchor = Anchor{HostTime: c.now()}
}

// SetTicksPerFrame changes the effective tick rate used for future periods
func (c *Clock) SetTicksPerFrame(ticks float64) {
	c.mu.Lock()
	c.ticksPerFrame = ticks
	c.mu.Unlock()
}

// TicksPerFrame returns the effective tick rate
func (c *Clock) TicksPerFrame() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticksPerFrame
}

// Anchor returns a copy of the current anchor
func (c *Clock) Anchor() Anchor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchor
}

// Query returns the latest zero timestamp, advancing one period once host time has
// reached the next boundary.
func (c *Clock) Query() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	next := c.anchor.PreviousTicks + float64(c.period)*c.ticksPerFrame
	if c.anchor.HostTime+uint64(next) <= now {
		c.anchor.PeriodCount++
		c.anchor.PreviousTicks = next
	}

	return Timestamp{
		SampleTime: float64(c.anchor.PeriodCount * c.period),
		HostTime:   c.anchor.HostTime + uint64(c.anchor.PreviousTicks),
		Seed:       1,
	}
}
