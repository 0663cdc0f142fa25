// ABOUTME: Sample-time sequencer for consumer streams
// ABOUTME: Orders decoded blocks, drops late ones and fills gaps with silence
package player

import (
	"container/heap"

	"github.com/charmbracelet/log"
)

// DefaultMaxGapFrames bounds the silence inserted for one gap
const DefaultMaxGapFrames = 48000

// Block is a run of interleaved samples starting at SampleTime
type Block struct {
	SampleTime int64
	Samples    []float32
}

// SequencerStats tracks sequencer metrics
type SequencerStats struct {
	Received  int64
	Released  int64
	Late      int64
	Gaps      int64
	GapFrames int64
	Resyncs   int64
}

// Sequencer releases blocks in sample-time order with no holes.
//
// Up to depth blocks are held back so that a late block can still slot in
// ahead of its successors. Gaps up to maxGap frames are filled with
// silence; larger gaps resync to the next block instead.
type Sequencer struct {
	channels int
	depth    int
	maxGap   int64
	queue    blockQueue
	next     int64
	started  bool
	logger   *log.Logger

	stats SequencerStats
}

// NewSequencer creates a sequencer for channels-wide blocks
func NewSequencer(channels, depth int, maxGapFrames int64, logger *log.Logger) *Sequencer {
	if maxGapFrames <= 0 {
		maxGapFrames = DefaultMaxGapFrames
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Sequencer{
		channels: channels,
		depth:    depth,
		maxGap:   maxGapFrames,
		logger:   logger.With("component", "sequencer"),
	}
	heap.Init(&s.queue)
	return s
}

// Push queues a block. Blocks that end before the release point are dropped.
func (s *Sequencer) Push(b Block) {
	s.stats.Received++
	frames := int64(len(b.Samples) / s.channels)
	if frames == 0 {
		return
	}
	if s.started && b.SampleTime+frames <= s.next {
		s.stats.Late++
		s.logger.Debug("dropped late block", "sample_time", b.SampleTime, "next", s.next)
		return
	}
	heap.Push(&s.queue, b)
}

// Pop returns the next samples to play once more than depth blocks are queued
func (s *Sequencer) Pop() ([]float32, bool) {
	if s.queue.Len() <= s.depth {
		return nil, false
	}
	return s.release(), true
}

// Flush releases everything still queued
func (s *Sequencer) Flush() [][]float32 {
	var out [][]float32
	for s.queue.Len() > 0 {
		if samples := s.release(); len(samples) > 0 {
			out = append(out, samples)
		}
	}
	return out
}

// Stats returns sequencer statistics
func (s *Sequencer) Stats() SequencerStats {
	return s.stats
}

func (s *Sequencer) release() []float32 {
	b := heap.Pop(&s.queue).(Block)
	if !s.started {
		s.next = b.SampleTime
		s.started = true
	}

	samples := b.Samples
	switch gap := b.SampleTime - s.next; {
	case gap > s.maxGap:
		s.stats.Resyncs++
		s.logger.Warn("gap too large, resyncing", "frames", gap)
	case gap > 0:
		s.stats.Gaps++
		s.stats.GapFrames += gap
		filled := make([]float32, int(gap)*s.channels+len(samples))
		copy(filled[int(gap)*s.channels:], samples)
		samples = filled
	case gap < 0:
		// Overlaps what was already released
		samples = samples[int(-gap)*s.channels:]
	}

	frames := int64(len(b.Samples) / s.channels)
	s.next = b.SampleTime + frames
	s.stats.Released++
	return samples
}

// blockQueue is a min-heap of blocks by sample time
type blockQueue struct {
	items []Block
}

func (q *blockQueue) Len() int { return len(q.items) }

func (q *blockQueue) Less(i, j int) bool {
	return q.items[i].SampleTime < q.items[j].SampleTime
}

func (q *blockQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *blockQueue) Push(x interface{}) {
	q.items = append(q.items, x.(Block))
}

func (q *blockQueue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}
