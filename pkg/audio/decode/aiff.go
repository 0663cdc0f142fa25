// ABOUTME: AIFF file source
// ABOUTME: Decodes AIFF files to float32 samples using go-audio/aiff
package decode

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/aiff"
)

// ErrNotAIFF reports a file without a FORM/AIFF header
var ErrNotAIFF = errors.New("not a valid AIFF file")

// OpenAIFF opens an AIFF file
func OpenAIFF(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open AIFF file: %w", err)
	}

	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotAIFF)
	}

	return &intSource{
		closer:     f,
		dec:        dec,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
	}, nil
}
