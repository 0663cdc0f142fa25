// ABOUTME: Interleaved float32 ring buffer and its wrap-safe transfer path
// ABOUTME: Handles mute, stale-data squelch and write-deadline overload detection
package loopback

import (
	"sync/atomic"
)

// Ring is the circular frame store shared by both endpoints.
// Sample data is only touched by the transfer path; the stale-tracking
// fields are atomics so a snapshot can be read from any goroutine.
type Ring struct {
	frames   int
	channels int
	latency  int64
	samples  []float32

	lastWrite  atomic.Int64
	hasWritten atomic.Bool
	clear      atomic.Bool
}

func newRing(frames, channels, latency int) *Ring {
	r := &Ring{
		frames:   frames,
		channels: channels,
		latency:  int64(latency),
		samples:  make([]float32, frames*channels),
	}
	r.clear.Store(true)
	return r
}

// Frames returns the ring capacity in frames
func (r *Ring) Frames() int { return r.frames }

// Channels returns the number of interleaved channels
func (r *Ring) Channels() int { return r.channels }

// LastWriteSampleTime returns the sample time just past the latest write
func (r *Ring) LastWriteSampleTime() (int64, bool) {
	return r.lastWrite.Load(), r.hasWritten.Load()
}

// Split decomposes a transfer of frameCount frames at sampleTime into at most two
// contiguous runs of a ring holding capacity frames.
func Split(sampleTime int64, frameCount, capacity int) (offset, first, second int) {
	offset = int(sampleTime % int64(capacity))
	if offset < 0 {
		offset += capacity
	}
	first = min(frameCount, capacity-offset)
	second = frameCount - first
	return offset, first, second
}

// stale reports whether no write covers a read of frames at readTime
func (r *Ring) stale(readTime int64, frames int) bool {
	if !r.hasWritten.Load() {
		return true
	}
	return r.lastWrite.Load()-int64(frames) < readTime
}

// read fills dst with frames starting at readTime. It returns true when the read was squelched.
func (r *Ring) read(readTime int64, frames int, dst []float32, muted bool, volume float32) bool {
	n := frames * r.channels
	out := dst[:n]

	if muted || r.stale(readTime, frames) {
		clear(out)
		if !r.clear.Load() {
			clear(r.samples)
			r.clear.Store(true)
		}
		return true
	}

	offset, first, second := Split(readTime, frames, r.frames)
	c := r.channels
	copy(out[:first*c], r.samples[offset*c:(offset+first)*c])
	if second > 0 {
		copy(out[first*c:], r.samples[:second*c])
	}

	if volume != 1 {
		for i := range out {
			out[i] *= volume
		}
	}
	return false
}

// write copies frames from src into the ring at cycle.OutputTime
func (r *Ring) write(cycle CycleInfo, frames int, src []float32) error {
	if cycle.CurrentTime > cycle.OutputTime+int64(frames)+r.latency {
		return ErrOverload
	}

	offset, first, second := Split(cycle.OutputTime, frames, r.frames)
	c := r.channels
	copy(r.samples[offset*c:(offset+first)*c], src[:first*c])
	if second > 0 {
		copy(r.samples[:second*c], src[first*c:frames*c])
	}

	r.lastWrite.Store(cycle.OutputTime + int64(frames))
	r.hasWritten.Store(true)
	r.clear.Store(false)
	return nil
}
