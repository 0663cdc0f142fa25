// ABOUTME: Tests for file sources and wire decoders
// ABOUTME: Covers tone, PCM, WAV, Vorbis reading and Open dispatch
package decode

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

func TestToneSource(t *testing.T) {
	tone := NewTone(1000, 48000, 2)
	buf := make([]float32, 96)

	n, err := tone.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 96 {
		t.Errorf("expected 96 samples, got %d", n)
	}
	if buf[0] != 0 {
		t.Errorf("expected first sample 0, got %v", buf[0])
	}
	for i := 0; i < 48; i++ {
		if buf[i*2] != buf[i*2+1] {
			t.Fatalf("frame %d: expected identical channels", i)
		}
		if math.Abs(float64(buf[i*2])) > 0.5001 {
			t.Fatalf("frame %d: expected half amplitude, got %v", i, buf[i*2])
		}
	}

	// Continues the phase across reads: 1 kHz at 48 kHz repeats every 48 frames
	next := make([]float32, 2)
	tone.Read(next)
	if math.Abs(float64(next[0])) > 1e-6 {
		t.Errorf("expected phase to continue, got %v", next[0])
	}
}

func TestPCMDecoder(t *testing.T) {
	dec, err := New(audio.Format{Codec: audio.CodecInt16, SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	out, err := dec.Decode([]byte{0x00, 0x40, 0x00, 0x80})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(out) != 2 || out[0] != 0.5 || out[1] != -1 {
		t.Errorf("expected [0.5 -1], got %v", out)
	}

	if _, err := dec.Decode([]byte{0x00, 0x40}); err == nil {
		t.Error("expected error for a partial frame")
	}

	f32, _ := New(audio.Format{Codec: audio.CodecFloat32, SampleRate: 48000, Channels: 1})
	out, err = f32.Decode(audio.PutFloat32LE([]float32{0.25, -0.75}))
	if err != nil || len(out) != 2 || out[0] != 0.25 || out[1] != -0.75 {
		t.Errorf("expected [0.25 -0.75], got %v %v", out, err)
	}
}

func TestNewPCM_InvalidCodec(t *testing.T) {
	decoder, err := NewPCM(audio.Format{Codec: audio.CodecOpus, SampleRate: 48000, Channels: 2})
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}
	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for PCM decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestNewUnknownCodec(t *testing.T) {
	if _, err := New(audio.Format{Codec: "mp3"}); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func writeTestWAV(t *testing.T, path string, samples []int, rate, channels int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to close encoder: %v", err)
	}
	f.Close()
}

func TestOpenWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wav")
	writeTestWAV(t, path, []int{16384, -16384, 0, 32767}, 44100, 2)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer src.Close()

	if src.SampleRate() != 44100 || src.Channels() != 2 {
		t.Errorf("expected 44100 Hz stereo, got %d Hz %d ch", src.SampleRate(), src.Channels())
	}

	buf := make([]float32, 16)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 samples, got %d", n)
	}
	if buf[0] != 0.5 || buf[1] != -0.5 || buf[2] != 0 {
		t.Errorf("unexpected samples %v", buf[:n])
	}

	if n, err := src.Read(buf); n != 0 || err == nil {
		t.Errorf("expected end of stream, got %d %v", n, err)
	}
}

func TestOpenWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("definitely not a riff file, just text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}

func TestOpenDispatch(t *testing.T) {
	src, err := Open("")
	if err != nil {
		t.Fatalf("expected test tone, got %v", err)
	}
	if _, ok := src.(*Tone); !ok {
		t.Errorf("expected *Tone, got %T", src)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.mp3")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("x"), 0o644)
	if _, err := Open(path); err == nil || !strings.Contains(err.Error(), "unsupported audio format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

type mockOggReader struct {
	channels int
	samples  []float32
	offset   int
}

func (m *mockOggReader) SampleRate() int { return 44100 }
func (m *mockOggReader) Channels() int   { return m.channels }

func (m *mockOggReader) Read(buf []float32) (int, error) {
	if m.offset >= len(m.samples) {
		return 0, io.EOF
	}
	n := copy(buf, m.samples[m.offset:])
	m.offset += n
	if m.offset >= len(m.samples) {
		return n, io.EOF
	}
	return n, nil
}

func TestVorbisSourceRead(t *testing.T) {
	src := &VorbisSource{
		closer: io.NopCloser(nil),
		dec:    &mockOggReader{channels: 2, samples: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}},
	}

	// An odd-sized buffer is trimmed to whole frames
	buf := make([]float32, 5)
	n, err := src.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("expected 4 samples, got %d %v", n, err)
	}

	n, err = src.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("expected final 2 samples without error, got %d %v", n, err)
	}

	if n, err := src.Read(buf); n != 0 || err != io.EOF {
		t.Errorf("expected io.EOF, got %d %v", n, err)
	}
}
