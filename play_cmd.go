// ABOUTME: play command streaming a file or test tone into the device
// ABOUTME: Resamples to the device rate and sends paced producer frames
package main

import (
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/resample"
)

const chunkDuration = 10 * time.Millisecond

var (
	playCodec string

	playCmd = &cobra.Command{
		Use:   "play [FILE|URL]",
		Short: "Stream audio into the device (440 Hz tone without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPlay,
	}
)

func init() {
	playCmd.Flags().StringVar(&playCodec, "codec", audio.CodecFloat32, "Wire codec (f32le, s16le, opus)")
}

func runPlay(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	src, err := decode.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	c, err := connect(ctx, protocol.RoleProducer, &protocol.AudioFormat{Codec: playCodec})
	if err != nil {
		return err
	}
	defer c.Close()

	hello := c.ServerHello()
	if hello.Format == nil {
		return errors.New("server sent no producer format")
	}
	format := audio.Format{
		Codec:      hello.Format.Codec,
		SampleRate: hello.Format.SampleRate,
		Channels:   hello.Format.Channels,
		BitDepth:   hello.Format.BitDepth,
	}
	encoder, err := encode.New(format)
	if err != nil {
		return err
	}
	defer encoder.Close()
	frameType, err := protocol.FrameTypeForCodec(format.Codec)
	if err != nil {
		return err
	}

	logger.Info("playing", "source", path, "source_rate", src.SampleRate(), "device_rate", format.SampleRate, "codec", format.Codec)

	p := &player{
		src:       src,
		resampler: resample.New(src.SampleRate(), format.SampleRate, src.Channels()),
		channels:  format.Channels,
		chunk:     encoder.FrameSamples(),
	}
	if p.chunk == 0 {
		p.chunk = int(chunkDuration.Seconds()*float64(format.SampleRate)) * format.Channels
	}
	period := time.Duration(float64(p.chunk/format.Channels) / float64(format.SampleRate) * float64(time.Second))

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var position int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return errors.New("server closed the connection")
		case e, ok := <-c.Errors:
			return serverError(e, ok)
		case <-ticker.C:
		}

		samples, err := p.next()
		if errors.Is(err, io.EOF) {
			logger.Info("source finished", "frames", position)
			return nil
		}
		if err != nil {
			return err
		}

		payload, err := encoder.Encode(samples)
		if err != nil {
			return err
		}
		if err := c.SendFrame(frameType, position, payload); err != nil {
			return err
		}
		position += int64(len(samples) / p.channels)
	}
}

// player pulls fixed-size chunks at the device rate and channel count from a source
type player struct {
	src       decode.Source
	resampler *resample.Resampler
	channels  int
	chunk     int
	pending   []float32
	eof       bool
}

// next returns exactly chunk samples, zero padded at the end of the source
func (p *player) next() ([]float32, error) {
	srcChannels := p.src.Channels()
	for len(p.pending) < p.chunk && !p.eof {
		frames := p.resampler.InputSamplesNeeded(p.chunk/p.channels*srcChannels) / srcChannels
		in := make([]float32, max(frames, 1)*srcChannels)
		n, err := p.src.Read(in)
		if errors.Is(err, io.EOF) {
			p.eof = true
		} else if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}

		out := make([]float32, p.resampler.OutputSamplesNeeded(n))
		m := p.resampler.Resample(in[:n], out)
		p.pending = append(p.pending, audio.Remix(out[:m], srcChannels, p.channels)...)
	}

	if len(p.pending) == 0 {
		return nil, io.EOF
	}

	chunk := make([]float32, p.chunk)
	n := copy(chunk, p.pending)
	p.pending = p.pending[n:]
	return chunk, nil
}
