// ABOUTME: Decoder and Source interface definitions
// ABOUTME: Opens file sources by extension and wire decoders by codec
package decode

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// Decoder decodes one wire payload to float32 samples
type Decoder interface {
	// Decode converts encoded audio data to interleaved samples
	Decode(data []byte) ([]float32, error)

	// Close releases decoder resources
	Close() error
}

// Source is a stream of interleaved float32 samples
type Source interface {
	// Read fills dst and returns the number of samples written.
	// It returns io.EOF once the stream is exhausted.
	Read(dst []float32) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// New creates a wire decoder for format
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case audio.CodecFloat32, audio.CodecInt16:
		return NewPCM(format)
	case audio.CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %q", format.Codec)
	}
}

// Open creates a source from a file path or HTTP URL.
// An empty path returns a 440 Hz test tone.
func Open(pathOrURL string) (Source, error) {
	if pathOrURL == "" {
		return NewTone(440, 48000, 2), nil
	}

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return openHTTP(pathOrURL)
	}

	if _, err := os.Stat(pathOrURL); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", pathOrURL)
	}

	ext := strings.ToLower(filepath.Ext(pathOrURL))
	switch ext {
	case ".mp3":
		return OpenMP3(pathOrURL)
	case ".flac":
		return OpenFLAC(pathOrURL)
	case ".wav":
		return OpenWAV(pathOrURL)
	case ".aif", ".aiff":
		return OpenAIFF(pathOrURL)
	case ".ogg", ".oga":
		return OpenVorbis(pathOrURL)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, .wav, .aiff, .ogg)", ext)
	}
}

// openHTTP streams an MP3 or Ogg Vorbis body. HTTP sources do not loop.
func openHTTP(url string) (Source, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "ogg") || strings.HasSuffix(strings.ToLower(url), ".ogg") {
		src, err := newVorbis(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		return src, nil
	}

	src, err := newMP3(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return src, nil
}
