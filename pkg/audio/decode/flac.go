// ABOUTME: FLAC file source
// ABOUTME: Decodes FLAC frames to float32 samples using mewkiz/flac
package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACSource reads from a FLAC file
type FLACSource struct {
	file     *os.File
	stream   *flac.Stream
	channels int
	bitDepth int
	pending  []float32
}

// OpenFLAC opens a FLAC file
func OpenFLAC(path string) (*FLACSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	return &FLACSource{
		file:     f,
		stream:   stream,
		channels: int(stream.Info.NChannels),
		bitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

// Read decodes whole frames, keeping leftover samples for the next call
func (s *FLACSource) Read(dst []float32) (int, error) {
	n := 0
	for n < len(dst) {
		if len(s.pending) == 0 {
			frame, err := s.stream.ParseNext()
			if err != nil {
				if n > 0 && err == io.EOF {
					return n, nil
				}
				return n, err
			}
			blockSize := int(frame.BlockSize)
			pending := make([]float32, 0, blockSize*s.channels)
			for i := 0; i < blockSize; i++ {
				for ch := 0; ch < s.channels; ch++ {
					pending = append(pending, audio.Float32FromInt(int(frame.Subframes[ch].Samples[i]), s.bitDepth))
				}
			}
			s.pending = pending
		}
		c := copy(dst[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

func (s *FLACSource) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Close() error    { return s.file.Close() }
