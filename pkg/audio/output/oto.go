// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams float32 samples to the speaker through a pipe-fed oto player
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// oto allows a single context per process
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoChans   int
	otoErr     error
)

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	ready      bool
	logger     *log.Logger
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{logger: log.Default().With("component", "output")}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext, otoRate, otoChans = ctx, sampleRate, channels
	})
	if otoErr != nil {
		return otoErr
	}
	if otoRate != sampleRate || otoChans != channels {
		return fmt.Errorf("output already open at %d Hz %d channels, cannot switch to %d Hz %d channels",
			otoRate, otoChans, sampleRate, channels)
	}
	if o.ready {
		return nil
	}

	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = otoContext.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true

	o.logger.Info("audio output initialized", "sample_rate", sampleRate, "channels", channels)
	return nil
}

// Write outputs audio samples (blocks until the player has consumed them)
func (o *Oto) Write(samples []float32) error {
	o.mu.Lock()
	w := o.pipeWriter
	ready := o.ready
	o.mu.Unlock()

	if !ready {
		return fmt.Errorf("output not initialized")
	}
	if _, err := w.Write(audio.PutFloat32LE(samples)); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	o.ready = false
	return nil
}
