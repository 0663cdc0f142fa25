// ABOUTME: Audio encoder package for encoding float32 samples
// ABOUTME: Provides Encoder interface, PCM and Opus wire encoders and a WAV recorder
// Package encode provides audio encoders for the wire and for recording.
//
// Wire encoders (f32le, s16le, Opus) implement Encoder and accept interleaved
// float32 samples. WAVWriter records samples to a WAV file through go-audio/wav.
//
// Example:
//
//	encoder, err := encode.New(format)
//	data, err := encoder.Encode(samples)
package encode
