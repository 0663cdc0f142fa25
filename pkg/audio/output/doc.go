// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface with oto and discard implementations
// Package output provides audio playback for monitoring the loopback device.
//
// Oto plays float32 samples on the system speaker. Discard accepts samples
// at real-time pace without playing them, for headless machines and tests.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(48000, 2)
//	err = out.Write(samples)
package output
