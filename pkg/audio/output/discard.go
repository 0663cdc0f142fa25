// ABOUTME: Discarding audio output
// ABOUTME: Paces writes at the sample rate without touching an audio device
package output

import (
	"fmt"
	"sync"
	"time"
)

// Discard drops samples, sleeping for their duration
type Discard struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	frames     int64
	started    time.Time
	sleep      func(time.Duration)
}

// NewDiscard creates a discarding output
func NewDiscard() *Discard {
	return &Discard{sleep: time.Sleep}
}

func (d *Discard) Open(sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid output format: %d Hz, %d channels", sampleRate, channels)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sampleRate, d.channels = sampleRate, channels
	d.started = time.Now()
	d.frames = 0
	return nil
}

// Write blocks until the samples would have finished playing
func (d *Discard) Write(samples []float32) error {
	d.mu.Lock()
	if d.sampleRate == 0 {
		d.mu.Unlock()
		return fmt.Errorf("output not initialized")
	}
	d.frames += int64(len(samples) / d.channels)
	due := d.started.Add(time.Duration(d.frames) * time.Second / time.Duration(d.sampleRate))
	d.mu.Unlock()

	if wait := time.Until(due); wait > 0 {
		d.sleep(wait)
	}
	return nil
}

// Frames returns the number of frames written since Open
func (d *Discard) Frames() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

func (d *Discard) Close() error { return nil }
