// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, codec names and float32 sample conversions
// Package audio provides the sample types shared by the loopback device and its clients.
//
// The device stores interleaved float32 frames in [-1, 1]. This package defines:
//   - Format: describes a stream (codec, sample rate, channels, bit depth)
//   - Codec names used on the wire: f32le, s16le and opus
//
// It also converts between float32 and the integer and byte layouts used by
// file decoders, the wire protocol and speaker output.
//
// Example:
//
//	format := audio.Format{
//	    Codec:      audio.CodecInt16,
//	    SampleRate: 48000,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//
//	// Convert a float32 sample to 16-bit
//	s16 := audio.Float32ToInt16(0.5)
package audio
