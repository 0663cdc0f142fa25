// ABOUTME: listen and record commands consuming the device's read side
// ABOUTME: Decodes consumer frames to the speakers or into a WAV file
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/loopback-go/internal/client"
	"github.com/Resonate-Protocol/loopback-go/internal/player"
	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/internal/sync"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/output"
)

const rateReportInterval = 10 * time.Second

var (
	listenCodec    string
	recordDuration time.Duration
	recordBits     int

	listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Monitor the device on the speakers",
		Args:  cobra.NoArgs,
		RunE:  runListen,
	}

	recordCmd = &cobra.Command{
		Use:   "record FILE.wav",
		Short: "Record the device into a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecord,
	}
)

func init() {
	listenCmd.Flags().StringVar(&listenCodec, "codec", audio.CodecFloat32, "Wire codec (f32le, s16le, opus)")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "Stop after this long (0 records until interrupted)")
	recordCmd.Flags().IntVar(&recordBits, "bits", 16, "WAV bit depth (16, 24, 32)")
}

// consume connects as a consumer and hands decoded samples to sink until ctx ends
func consume(ctx context.Context, codec string, open func(audio.Format) error, sink func([]float32) error) error {
	c, err := connect(ctx, protocol.RoleConsumer, &protocol.AudioFormat{Codec: codec})
	if err != nil {
		return err
	}
	defer c.Close()

	hello := c.ServerHello()
	if hello.Format == nil {
		return errors.New("server sent no consumer format")
	}
	format := audio.Format{
		Codec:      hello.Format.Codec,
		SampleRate: hello.Format.SampleRate,
		Channels:   hello.Format.Channels,
		BitDepth:   hello.Format.BitDepth,
	}
	if format.Codec != codec {
		logger.Warn("server picked another codec", "requested", codec, "got", format.Codec)
	}

	decoder, err := decode.New(format)
	if err != nil {
		return err
	}
	defer decoder.Close()

	if err := open(format); err != nil {
		return err
	}
	return receive(ctx, c, decoder, format, sink)
}

func receive(ctx context.Context, c *client.Client, decoder decode.Decoder, format audio.Format, sink func([]float32) error) error {
	seq := player.NewSequencer(format.Channels, 0, int64(format.SampleRate), logger)
	tracker := sync.NewRateTracker(format.SampleRate, sync.DefaultUpdateInterval, logger)
	report := time.NewTicker(rateReportInterval)
	defer report.Stop()
	defer func() {
		st, rs := seq.Stats(), tracker.Stats()
		logger.Info("stream finished", "blocks", st.Released, "late", st.Late, "gaps", st.Gaps,
			"gap_frames", st.GapFrames, "rate", fmt.Sprintf("%.1f", rs.Rate), "quality", rs.Quality)
	}()

	for {
		select {
		case <-ctx.Done():
			return flush(seq, sink)
		case e, ok := <-c.Errors:
			return serverError(e, ok)
		case <-report.C:
			rs := tracker.Stats()
			logger.Info("device rate", "rate", fmt.Sprintf("%.1f", rs.Rate), "ppm", fmt.Sprintf("%+.0f", rs.PPM),
				"quality", tracker.CheckQuality(time.Now()))
		case frame, ok := <-c.Frames:
			if !ok {
				if err := flush(seq, sink); err != nil {
					return err
				}
				return errors.New("server closed the connection")
			}
			tracker.Observe(frame.SampleTime, time.Now())
			samples, err := decoder.Decode(frame.Payload)
			if err != nil {
				logger.Warn("failed to decode frame", "sample_time", frame.SampleTime, "error", err)
				continue
			}
			seq.Push(player.Block{SampleTime: frame.SampleTime, Samples: samples})
			for {
				out, ok := seq.Pop()
				if !ok {
					break
				}
				if err := sink(out); err != nil {
					return err
				}
			}
		}
	}
}

func flush(seq *player.Sequencer, sink func([]float32) error) error {
	for _, out := range seq.Flush() {
		if err := sink(out); err != nil {
			return err
		}
	}
	return nil
}

func runListen(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var out output.Output = output.NewOto()
	if debug.FakeOutput {
		out = output.NewDiscard()
	}
	defer out.Close()

	return consume(ctx, listenCodec, func(f audio.Format) error {
		logger.Info("listening", "sample_rate", f.SampleRate, "channels", f.Channels, "codec", f.Codec)
		return out.Open(f.SampleRate, f.Channels)
	}, out.Write)
}

func runRecord(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	if recordDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[0], err)
	}
	defer f.Close()

	var w *encode.WAVWriter
	err = consume(ctx, audio.CodecFloat32, func(format audio.Format) error {
		format.BitDepth = recordBits
		var err error
		w, err = encode.NewWAVWriter(f, format)
		return err
	}, func(samples []float32) error {
		return w.Write(samples)
	})
	if w != nil {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
		fmt.Printf("Recorded %s frames to %s\n", humanize.Comma(w.Frames()), args[0])
	}
	return err
}
