// ABOUTME: WAV recorder
// ABOUTME: Writes float32 samples to an integer PCM WAV file using go-audio/wav
package encode

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// WAVWriter records interleaved float32 samples as integer PCM
type WAVWriter struct {
	enc      *wav.Encoder
	bitDepth int
	buf      *goaudio.IntBuffer
	frames   int64
	channels int
}

// NewWAVWriter writes a WAV header for format to w. BitDepth defaults to 16.
func NewWAVWriter(w io.WriteSeeker, format audio.Format) (*WAVWriter, error) {
	bitDepth := format.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported WAV bit depth: %d (supported: 16, 24, 32)", bitDepth)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz, %d channels", format.SampleRate, format.Channels)
	}

	return &WAVWriter{
		enc:      wav.NewEncoder(w, format.SampleRate, bitDepth, format.Channels, 1),
		bitDepth: bitDepth,
		channels: format.Channels,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Write appends samples to the file
func (w *WAVWriter) Write(samples []float32) error {
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = audio.Float32ToInt(s, w.bitDepth)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write WAV samples: %w", err)
	}
	w.frames += int64(len(samples) / w.channels)
	return nil
}

// Frames returns the number of frames written so far
func (w *WAVWriter) Frames() int64 {
	return w.frames
}

// Close finalizes the header sizes. The underlying writer is left open.
func (w *WAVWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}
