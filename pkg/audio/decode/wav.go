// ABOUTME: WAV file source
// ABOUTME: Decodes integer PCM WAV files to float32 samples using go-audio/wav
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// ErrNotWAV reports a file without a RIFF/WAVE header
var ErrNotWAV = errors.New("not a valid WAV file")

// pcmBufferReader is the part of the go-audio decoders used by intSource
type pcmBufferReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
	Format() *goaudio.Format
}

// intSource converts go-audio integer buffers to float32
type intSource struct {
	closer     io.Closer
	dec        pcmBufferReader
	sampleRate int
	channels   int
	bitDepth   int
	buf        *goaudio.IntBuffer
}

func (s *intSource) Read(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if s.buf == nil || cap(s.buf.Data) < len(dst) {
		s.buf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: s.dec.Format(),
		}
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.buf)
	for i := 0; i < n; i++ {
		dst[i] = audio.Float32FromInt(s.buf.Data[i], s.bitDepth)
	}
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	return n, nil
}

func (s *intSource) SampleRate() int { return s.sampleRate }
func (s *intSource) Channels() int   { return s.channels }
func (s *intSource) Close() error    { return s.closer.Close() }

// OpenWAV opens a WAV file
func OpenWAV(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}

	return &intSource{
		closer:     f,
		dec:        dec,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
	}, nil
}
