// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all wire encoders
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// Encoder encodes interleaved float32 samples
type Encoder interface {
	// Encode converts samples to encoded audio data
	Encode(samples []float32) ([]byte, error)

	// FrameSamples is the number of samples Encode expects per call, or 0 for any
	FrameSamples() int

	// Close releases encoder resources
	Close() error
}

// New creates a wire encoder for format
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case audio.CodecFloat32, audio.CodecInt16:
		return NewPCM(format)
	case audio.CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %q", format.Codec)
	}
}
