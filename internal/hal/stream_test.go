// ABOUTME: Tests for the stream producer and tap consumer
// ABOUTME: Frame alignment, back-pressure, cancellation and drop counting
package hal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamProducerFrames(t *testing.T) {
	p := NewStreamProducer(2, 16)
	require.NoError(t, p.Push(context.Background(), []float32{1, 2, 3, 4, 5}))
	assert.Equal(t, 2, p.Buffered())

	dst := make([]float32, 8)
	n := p.Produce(dst)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{1, 2, 3, 4}, dst[:4])
	assert.Equal(t, uint64(1), p.Underruns())

	// The odd sample stays queued until its frame completes
	require.NoError(t, p.Push(context.Background(), []float32{6}))
	n = p.Produce(dst)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float32{5, 6}, dst[:2])
}

func TestStreamProducerBlocksWhenFull(t *testing.T) {
	p := NewStreamProducer(1, 4)
	require.NoError(t, p.Push(context.Background(), []float32{1, 2, 3, 4}))

	done := make(chan error, 1)
	go func() {
		done <- p.Push(context.Background(), []float32{5, 6})
	}()

	select {
	case <-done:
		t.Fatal("expected push to block on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	dst := make([]float32, 2)
	p.Produce(dst)
	require.NoError(t, <-done)
	assert.Equal(t, 4, p.Buffered())
}

func TestStreamProducerCancelAndClose(t *testing.T) {
	p := NewStreamProducer(1, 1)
	require.NoError(t, p.Push(context.Background(), []float32{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Push(ctx, []float32{2}), context.DeadlineExceeded)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Close()
	}()
	assert.ErrorIs(t, p.Push(context.Background(), []float32{3}), ErrClosed)
}

func TestTapReportsSkippedSamples(t *testing.T) {
	tap := NewTap(1)

	tap.Consume([]float32{1, 2})
	tap.Consume([]float32{3, 4})
	tap.Consume([]float32{5, 6, 7, 8})
	require.Equal(t, uint64(2), tap.Dropped())

	first := <-tap.C()
	assert.Equal(t, []float32{1, 2}, first.Samples)
	assert.Zero(t, first.Skipped)

	tap.Consume([]float32{9, 10})
	next := <-tap.C()
	assert.Equal(t, []float32{9, 10}, next.Samples)
	assert.Equal(t, 6, next.Skipped)

	tap.Consume([]float32{11, 12})
	assert.Zero(t, (<-tap.C()).Skipped)
}

func TestTapDropsWhenFull(t *testing.T) {
	tap := NewTap(1)
	src := []float32{1, 2}

	tap.Consume(src)
	src[0] = 9
	tap.Consume(src)

	assert.Equal(t, uint64(1), tap.Dropped())
	got := <-tap.C()
	assert.Equal(t, []float32{1, 2}, got.Samples)
	assert.Zero(t, got.Skipped)

	tap.Close()
	tap.Close()
	tap.Consume(src)
	_, ok := <-tap.C()
	assert.False(t, ok)
}
