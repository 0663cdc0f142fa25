// ABOUTME: Opus wire encoder
// ABOUTME: Encodes 20 ms float32 frames to Opus packets
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest packet the encoder is allowed to produce
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int
	packet    []byte
}

// NewOpus creates a new Opus encoder
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	return &OpusEncoder{
		encoder:   encoder,
		channels:  format.Channels,
		frameSize: format.SampleRate / 50, // 20ms
		packet:    make([]byte, maxOpusPacket),
	}, nil
}

// Encode converts exactly one 20 ms frame of samples to an Opus packet
func (e *OpusEncoder) Encode(samples []float32) ([]byte, error) {
	if len(samples) != e.FrameSamples() {
		return nil, fmt.Errorf("opus expects %d samples per frame, got %d", e.FrameSamples(), len(samples))
	}

	n, err := e.encoder.EncodeFloat32(samples, e.packet)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	out := make([]byte, n)
	copy(out, e.packet[:n])
	return out, nil
}

func (e *OpusEncoder) FrameSamples() int { return e.frameSize * e.channels }

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
