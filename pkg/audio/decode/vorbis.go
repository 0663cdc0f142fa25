// ABOUTME: Ogg Vorbis file source
// ABOUTME: Decodes Ogg Vorbis to float32 samples using jfreymuth/oggvorbis
package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// oggReader is the part of oggvorbis.Reader used by VorbisSource
type oggReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
}

// VorbisSource reads from an Ogg Vorbis stream
type VorbisSource struct {
	closer io.Closer
	dec    oggReader
}

// OpenVorbis opens an Ogg Vorbis file
func OpenVorbis(path string) (*VorbisSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Ogg file: %w", err)
	}
	src, err := newVorbis(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func newVorbis(rc io.ReadCloser) (*VorbisSource, error) {
	dec, err := oggvorbis.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}
	return &VorbisSource{closer: rc, dec: dec}, nil
}

// Read decodes whole frames into dst. The reader returns interleaved values, not frames.
func (s *VorbisSource) Read(dst []float32) (int, error) {
	ch := s.dec.Channels()
	want := len(dst) / ch * ch
	if want == 0 {
		return 0, nil
	}
	n, err := s.dec.Read(dst[:want])
	if n > 0 && err == io.EOF {
		return n, nil
	}
	return n, err
}

func (s *VorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *VorbisSource) Channels() int   { return s.dec.Channels() }
func (s *VorbisSource) Close() error    { return s.closer.Close() }
