// ABOUTME: Tests for the sample-time sequencer
// ABOUTME: Ordering, late drops, gap filling, overlap trimming and resync
package player

import (
	"io"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
)

func block(sampleTime int64, frames int, value float32) Block {
	samples := make([]float32, frames*2)
	for i := range samples {
		samples[i] = value
	}
	return Block{SampleTime: sampleTime, Samples: samples}
}

func newSequencer(depth int, maxGap int64) *Sequencer {
	return NewSequencer(2, depth, maxGap, log.New(io.Discard))
}

func TestSequencerPassesInOrder(t *testing.T) {
	s := newSequencer(0, 0)
	for i := 0; i < 3; i++ {
		s.Push(block(int64(i*10), 10, float32(i+1)))
		out, ok := s.Pop()
		if !ok || len(out) != 20 || out[0] != float32(i+1) {
			t.Fatalf("block %d: expected 20 samples of %d, got %v %v", i, i+1, ok, out)
		}
	}
	if _, ok := s.Pop(); ok {
		t.Error("expected nothing left to pop")
	}
}

func TestSequencerReorders(t *testing.T) {
	s := newSequencer(1, 0)
	s.Push(block(10, 10, 2))
	if _, ok := s.Pop(); ok {
		t.Fatal("expected block held back")
	}
	s.Push(block(0, 10, 1))

	out, ok := s.Pop()
	if !ok || out[0] != 1 {
		t.Fatalf("expected the earlier block first, got %v", out)
	}
	rest := s.Flush()
	if len(rest) != 1 || rest[0][0] != 2 {
		t.Fatalf("expected the later block on flush, got %v", rest)
	}
}

func TestSequencerDropsLate(t *testing.T) {
	s := newSequencer(0, 0)
	s.Push(block(0, 10, 1))
	s.Pop()
	s.Push(block(10, 10, 2))
	s.Pop()

	s.Push(block(5, 5, 9))
	if _, ok := s.Pop(); ok {
		t.Error("expected late block dropped")
	}
	if st := s.Stats(); st.Late != 1 || st.Received != 3 || st.Released != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSequencerFillsGaps(t *testing.T) {
	s := newSequencer(0, 0)
	s.Push(block(0, 10, 1))
	s.Pop()

	s.Push(block(15, 10, 2))
	out, _ := s.Pop()
	if len(out) != 30 {
		t.Fatalf("expected 5 silent frames plus 10, got %d samples", len(out))
	}
	if !slices.Equal(out[:10], make([]float32, 10)) || out[10] != 2 {
		t.Errorf("expected silence then data, got %v", out)
	}
	if st := s.Stats(); st.Gaps != 1 || st.GapFrames != 5 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSequencerTrimsOverlap(t *testing.T) {
	s := newSequencer(0, 0)
	s.Push(block(0, 10, 1))
	s.Pop()

	s.Push(block(6, 10, 2))
	out, _ := s.Pop()
	if len(out) != 12 {
		t.Errorf("expected 6 new frames, got %d samples", len(out))
	}

	s.Push(block(16, 4, 3))
	if out, _ := s.Pop(); len(out) != 8 {
		t.Errorf("expected release point at 16, got %d samples", len(out))
	}
}

func TestSequencerResyncsLargeGap(t *testing.T) {
	s := newSequencer(0, 100)
	s.Push(block(0, 10, 1))
	s.Pop()

	s.Push(block(10_000, 10, 2))
	out, _ := s.Pop()
	if len(out) != 20 {
		t.Errorf("expected no fill for a large gap, got %d samples", len(out))
	}
	if st := s.Stats(); st.Resyncs != 1 || st.Gaps != 0 {
		t.Errorf("unexpected stats %+v", st)
	}

	s.Push(block(10_010, 10, 3))
	if out, _ := s.Pop(); len(out) != 20 {
		t.Errorf("expected continuous release after resync, got %d samples", len(out))
	}
}

func TestSequencerIgnoresEmptyBlocks(t *testing.T) {
	s := newSequencer(0, 0)
	s.Push(Block{SampleTime: 0})
	if _, ok := s.Pop(); ok {
		t.Error("expected empty block ignored")
	}
}
