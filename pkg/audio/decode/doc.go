// ABOUTME: Audio decoder package for file sources and wire frames
// ABOUTME: Provides Source and Decoder interfaces for MP3, FLAC, WAV, AIFF, Ogg Vorbis, PCM and Opus
// Package decode turns encoded audio into interleaved float32 samples in [-1, 1].
//
// Two shapes are provided:
//   - Source: a pull-based stream opened from a file, URL or generator
//     (MP3, FLAC, WAV, AIFF, Ogg Vorbis, test tone)
//   - Decoder: converts one wire payload at a time (f32le, s16le, Opus)
//
// Example:
//
//	src, err := decode.Open("song.flac")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//	buf := make([]float32, 4096)
//	n, err := src.Read(buf)
package decode
