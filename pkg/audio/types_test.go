// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion functions and format validation
package audio

import (
	"math"
	"testing"
)

func TestFloat32ToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full scale", 1, 32767},
		{"negative full scale", -1, -32768},
		{"clip high", 1.5, 32767},
		{"clip low", -3, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Float32ToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestFloat32FromInt16(t *testing.T) {
	if v := Float32FromInt16(-32768); v != -1 {
		t.Errorf("expected -1, got %v", v)
	}
	if v := Float32FromInt16(16384); v != 0.5 {
		t.Errorf("expected 0.5, got %v", v)
	}
}

func TestFloat32IntBitDepths(t *testing.T) {
	tests := []struct {
		bitDepth int
		sample   int
		expected float32
	}{
		{8, 64, 0.5},
		{16, -16384, -0.5},
		{24, 4194304, 0.5},
		{32, -1073741824, -0.5},
	}

	for _, tt := range tests {
		if v := Float32FromInt(tt.sample, tt.bitDepth); v != tt.expected {
			t.Errorf("%d-bit %d: expected %v, got %v", tt.bitDepth, tt.sample, tt.expected, v)
		}
		if v := Float32ToInt(tt.expected, tt.bitDepth); v != tt.sample {
			t.Errorf("%d-bit %v: expected %d, got %d", tt.bitDepth, tt.expected, tt.sample, v)
		}
	}

	if v := Float32ToInt(2, 16); v != 32767 {
		t.Errorf("expected clip to 32767, got %d", v)
	}
}

func TestFloat32LEBytes(t *testing.T) {
	in := []float32{0, 1, -1, 0.25, float32(math.Pi)}
	data := PutFloat32LE(in)
	if len(data) != 20 {
		t.Fatalf("expected 20 bytes, got %d", len(data))
	}
	// 1.0 is 0x3F800000
	if data[4] != 0x00 || data[5] != 0x00 || data[6] != 0x80 || data[7] != 0x3F {
		t.Errorf("unexpected encoding of 1.0: % x", data[4:8])
	}

	out := Float32FromLE(append(data, 0xFF))
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestInt16LEBytes(t *testing.T) {
	data := PutInt16LE([]float32{0.5, -1})
	expected := []byte{0x00, 0x40, 0x00, 0x80}
	for i := range expected {
		if data[i] != expected[i] {
			t.Fatalf("expected % x, got % x", expected, data)
		}
	}

	out := Float32FromInt16LE(data)
	if out[0] != 0.5 || out[1] != -1 {
		t.Errorf("expected [0.5 -1], got %v", out)
	}
}

func TestRemix(t *testing.T) {
	mono := []float32{0.1, 0.2, 0.3}
	stereo := Remix(mono, 1, 2)
	expected := []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}
	for i := range expected {
		if stereo[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, stereo)
		}
	}

	back := Remix(stereo, 2, 1)
	for i := range mono {
		if back[i] != mono[i] {
			t.Fatalf("expected %v, got %v", mono, back)
		}
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"float32", Format{Codec: CodecFloat32, SampleRate: 96000, Channels: 2}, false},
		{"int16", Format{Codec: CodecInt16, SampleRate: 44100, Channels: 8}, false},
		{"opus 48k", Format{Codec: CodecOpus, SampleRate: 48000, Channels: 2}, false},
		{"opus 44.1k", Format{Codec: CodecOpus, SampleRate: 44100, Channels: 2}, true},
		{"opus surround", Format{Codec: CodecOpus, SampleRate: 48000, Channels: 6}, true},
		{"unknown codec", Format{Codec: "mp3", SampleRate: 48000, Channels: 2}, true},
		{"no channels", Format{Codec: CodecInt16, SampleRate: 48000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}

	if n := (Format{Codec: CodecFloat32, Channels: 2}).FrameBytes(); n != 8 {
		t.Errorf("expected 8 bytes per float32 stereo frame, got %d", n)
	}
}
