// ABOUTME: Unit tests for wire encoders and the WAV recorder
// ABOUTME: Tests PCM byte layout, Opus framing and WAV output
package encode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

func TestPCMEncoder(t *testing.T) {
	tests := []struct {
		name     string
		codec    string
		expected []byte
	}{
		{"int16", audio.CodecInt16, []byte{0x00, 0x40, 0x00, 0xC0}},
		{"float32", audio.CodecFloat32, []byte{0x00, 0x00, 0x00, 0x3F, 0x00, 0x00, 0x00, 0xBF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := New(audio.Format{Codec: tt.codec, SampleRate: 48000, Channels: 2})
			if err != nil {
				t.Fatalf("failed to create encoder: %v", err)
			}
			data, err := enc.Encode([]float32{0.5, -0.5})
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if string(data) != string(tt.expected) {
				t.Errorf("expected % x, got % x", tt.expected, data)
			}
			if enc.FrameSamples() != 0 {
				t.Errorf("expected PCM to accept any size, got %d", enc.FrameSamples())
			}
		})
	}
}

func TestNewPCM_InvalidCodec(t *testing.T) {
	_, err := NewPCM(audio.Format{Codec: audio.CodecOpus})
	if err == nil || !strings.Contains(err.Error(), "invalid codec") {
		t.Errorf("expected invalid codec error, got %v", err)
	}
}

func TestNewOpus(t *testing.T) {
	tests := []struct {
		name        string
		format      audio.Format
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid Opus 48kHz stereo",
			format: audio.Format{Codec: audio.CodecOpus, SampleRate: 48000, Channels: 2},
		},
		{
			name:   "valid Opus 24kHz mono",
			format: audio.Format{Codec: audio.CodecOpus, SampleRate: 24000, Channels: 1},
		},
		{
			name:        "invalid codec",
			format:      audio.Format{Codec: audio.CodecInt16, SampleRate: 48000, Channels: 2},
			wantErr:     true,
			errContains: "invalid codec",
		},
		{
			name:        "unsupported rate",
			format:      audio.Format{Codec: audio.CodecOpus, SampleRate: 96000, Channels: 2},
			wantErr:     true,
			errContains: "96000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewOpus(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewOpus() expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewOpus() error = %v, want error containing %v", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpus() unexpected error = %v", err)
			}
			encoder.Close()
		})
	}
}

func TestOpusEncoder_Encode(t *testing.T) {
	encoder, err := NewOpus(audio.Format{Codec: audio.CodecOpus, SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("NewOpus() failed: %v", err)
	}
	defer encoder.Close()

	if encoder.FrameSamples() != 960*2 {
		t.Fatalf("expected 1920 samples per frame, got %d", encoder.FrameSamples())
	}

	samples := make([]float32, encoder.FrameSamples())
	for i := range samples {
		samples[i] = float32(i%100) / 200
	}

	output, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if len(output) == 0 || len(output) > maxOpusPacket {
		t.Errorf("Encode() output size %d out of range", len(output))
	}

	if _, err := encoder.Encode(samples[:100]); err == nil {
		t.Error("expected error for a short frame")
	}
}

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWAVWriter(f, audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.Write([]float32{0.5, -0.5, 0.25, 0}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if w.Frames() != 2 {
		t.Errorf("expected 2 frames, got %d", w.Frames())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		t.Fatal("expected a valid WAV file")
	}
	if dec.SampleRate != 48000 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Errorf("unexpected header: %d Hz %d ch %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	expected := []int{16384, -16384, 8192, 0}
	for i := range expected {
		if buf.Data[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, buf.Data)
		}
	}
}

func TestWAVWriterRejectsBitDepth(t *testing.T) {
	f, _ := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	defer f.Close()
	if _, err := NewWAVWriter(f, audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 12}); err == nil {
		t.Error("expected error for 12-bit")
	}
}
