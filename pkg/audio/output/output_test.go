// ABOUTME: Audio output interface tests
// ABOUTME: Verifies Output implementations and discard pacing
package output

import (
	"testing"
	"time"
)

func TestImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
	var _ Output = (*Discard)(nil)
}

func TestDiscardRequiresOpen(t *testing.T) {
	d := NewDiscard()
	if err := d.Write(make([]float32, 4)); err == nil {
		t.Error("expected error before Open")
	}
	if err := d.Open(0, 2); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDiscardPacing(t *testing.T) {
	d := NewDiscard()
	var slept time.Duration
	d.sleep = func(dur time.Duration) { slept += dur }

	if err := d.Open(48000, 2); err != nil {
		t.Fatal(err)
	}
	// Half a second of stereo audio
	if err := d.Write(make([]float32, 48000)); err != nil {
		t.Fatal(err)
	}
	if d.Frames() != 24000 {
		t.Errorf("expected 24000 frames, got %d", d.Frames())
	}
	if slept < 400*time.Millisecond || slept > 500*time.Millisecond {
		t.Errorf("expected to wait about 500ms, waited %v", slept)
	}
}
