// ABOUTME: MP3 file source
// ABOUTME: Decodes MP3 to float32 stereo samples using go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Source reads from an MP3 stream
type MP3Source struct {
	closer  io.Closer
	decoder *mp3.Decoder
	buf     []byte
}

// OpenMP3 opens an MP3 file
func OpenMP3(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	src, err := newMP3(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func newMP3(rc io.ReadCloser) (*MP3Source, error) {
	decoder, err := mp3.NewDecoder(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &MP3Source{closer: rc, decoder: decoder}, nil
}

// Read decodes up to len(dst) samples. go-mp3 always produces 16-bit stereo.
func (s *MP3Source) Read(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.decoder, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	samples := n / 2
	for i := 0; i < samples; i++ {
		dst[i] = audio.Float32FromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	if samples > 0 && err == io.EOF {
		return samples, nil
	}
	return samples, err
}

func (s *MP3Source) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3Source) Channels() int   { return 2 }
func (s *MP3Source) Close() error    { return s.closer.Close() }
