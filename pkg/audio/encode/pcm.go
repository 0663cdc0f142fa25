// ABOUTME: PCM wire encoder
// ABOUTME: Encodes float32 samples to little-endian float32 or int16 bytes
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// PCMEncoder encodes uncompressed wire payloads
type PCMEncoder struct {
	codec string
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecFloat32 && format.Codec != audio.CodecInt16 {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}
	return &PCMEncoder{codec: format.Codec}, nil
}

// Encode converts samples to PCM bytes
func (e *PCMEncoder) Encode(samples []float32) ([]byte, error) {
	if e.codec == audio.CodecInt16 {
		return audio.PutInt16LE(samples), nil
	}
	return audio.PutFloat32LE(samples), nil
}

func (e *PCMEncoder) FrameSamples() int { return 0 }

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
