// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, codec names and sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire codec names
const (
	CodecFloat32 = "f32le"
	CodecInt16   = "s16le"
	CodecOpus    = "opus"
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// FrameBytes returns the size of one uncompressed frame on the wire
func (f Format) FrameBytes() int {
	switch f.Codec {
	case CodecFloat32:
		return 4 * f.Channels
	case CodecInt16:
		return 2 * f.Channels
	default:
		return 0
	}
}

// Validate checks that the format can be carried on the wire
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("invalid format: %d Hz, %d channels", f.SampleRate, f.Channels)
	}
	switch f.Codec {
	case CodecFloat32, CodecInt16:
		return nil
	case CodecOpus:
		if !IsOpusSampleRate(f.SampleRate) {
			return fmt.Errorf("opus does not support %d Hz", f.SampleRate)
		}
		if f.Channels > 2 {
			return fmt.Errorf("opus supports at most 2 channels, got %d", f.Channels)
		}
		return nil
	default:
		return fmt.Errorf("unknown codec: %q", f.Codec)
	}
}

// IsOpusSampleRate reports whether libopus accepts rate
func IsOpusSampleRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// Float32ToInt16 converts a sample in [-1, 1] to int16, clipping out-of-range values
func Float32ToInt16(sample float32) int16 {
	v := sample * 32768
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Float32FromInt16 converts an int16 sample to [-1, 1)
func Float32FromInt16(sample int16) float32 {
	return float32(sample) / 32768
}

// Float32FromInt converts an integer sample of the given bit depth to [-1, 1)
func Float32FromInt(sample, bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	return float32(float64(sample) / float64(int64(1)<<(bitDepth-1)))
}

// Float32ToInt converts a sample in [-1, 1] to an integer of the given bit depth
func Float32ToInt(sample float32, bitDepth int) int {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	full := float64(int64(1) << (bitDepth - 1))
	v := float64(sample) * full
	if v > full-1 {
		return int(full - 1)
	}
	if v < -full {
		return int(-full)
	}
	return int(v)
}

// PutFloat32LE encodes samples as little-endian float32 into a new byte slice
func PutFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Float32FromLE decodes little-endian float32 bytes; a trailing partial sample is ignored
func Float32FromLE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// PutInt16LE encodes samples as clipped little-endian int16 into a new byte slice
func PutInt16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Float32ToInt16(s)))
	}
	return out
}

// Float32FromInt16LE decodes little-endian int16 bytes; a trailing partial sample is ignored
func Float32FromInt16LE(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = Float32FromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return out
}

// Remix converts interleaved samples between channel counts. Extra output channels
// repeat the last input channel; dropped channels are discarded.
func Remix(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 {
		return in
	}
	frames := len(in) / from
	out := make([]float32, frames*to)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < to; ch++ {
			out[f*to+ch] = in[f*from+min(ch, from-1)]
		}
	}
	return out
}
