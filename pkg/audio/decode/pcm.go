// ABOUTME: PCM wire decoder
// ABOUTME: Decodes little-endian float32 and int16 payloads to float32 samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// PCMDecoder decodes uncompressed wire payloads
type PCMDecoder struct {
	codec    string
	channels int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecFloat32 && format.Codec != audio.CodecInt16 {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}
	return &PCMDecoder{codec: format.Codec, channels: format.Channels}, nil
}

// Decode converts PCM bytes to samples. Payloads must hold whole frames.
func (d *PCMDecoder) Decode(data []byte) ([]float32, error) {
	frameBytes := audio.Format{Codec: d.codec, Channels: d.channels}.FrameBytes()
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not a whole number of %d-byte frames", len(data), frameBytes)
	}
	if d.codec == audio.CodecInt16 {
		return audio.Float32FromInt16LE(data), nil
	}
	return audio.Float32FromLE(data), nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
