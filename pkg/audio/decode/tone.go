// ABOUTME: Test tone generator source
// ABOUTME: Generates an endless sine wave at half amplitude on every channel
package decode

import (
	"math"
	"sync"
)

// Tone generates a sine wave
type Tone struct {
	mu         sync.Mutex
	frequency  float64
	sampleRate int
	channels   int
	frame      uint64
}

// NewTone creates a sine generator at frequency Hz
func NewTone(frequency float64, sampleRate, channels int) *Tone {
	return &Tone{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (s *Tone) Read(dst []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(dst) / s.channels
	for i := 0; i < frames; i++ {
		t := float64(s.frame+uint64(i)) / float64(s.sampleRate)
		v := float32(0.5 * math.Sin(2*math.Pi*s.frequency*t))
		for ch := 0; ch < s.channels; ch++ {
			dst[i*s.channels+ch] = v
		}
	}
	s.frame += uint64(frames)
	return frames * s.channels, nil
}

func (s *Tone) SampleRate() int { return s.sampleRate }
func (s *Tone) Channels() int   { return s.channels }
func (s *Tone) Close() error    { return nil }
