// ABOUTME: Producer and consumer streaming between websocket clients and the host
// ABOUTME: Decodes producer frames into the write side and encodes the read side for consumers
package server

import (
	"fmt"
	"slices"

	"github.com/Resonate-Protocol/loopback-go/internal/hal"
	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/loopback-go/pkg/audio/encode"
)

// producerFormat validates what a producer announced. Producers send at the device rate.
func (s *Server) producerFormat(req *protocol.AudioFormat) (protocol.AudioFormat, error) {
	f := protocol.AudioFormat{
		Codec:      audio.CodecFloat32,
		SampleRate: s.engine.SampleRate(),
		Channels:   s.engine.Channels(),
	}
	if req != nil {
		if req.Codec != "" {
			f.Codec = req.Codec
		}
		if req.SampleRate != 0 {
			f.SampleRate = req.SampleRate
		}
		if req.Channels != 0 {
			f.Channels = req.Channels
		}
	}

	if f.SampleRate != s.engine.SampleRate() {
		return f, fmt.Errorf("producer sample rate %d does not match device rate %d", f.SampleRate, s.engine.SampleRate())
	}
	if err := toAudioFormat(f).Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// consumerFormat picks what a consumer receives, falling back to PCM when Opus cannot carry the device format
func (s *Server) consumerFormat(req *protocol.AudioFormat) protocol.AudioFormat {
	f := protocol.AudioFormat{
		Codec:      audio.CodecFloat32,
		SampleRate: s.engine.SampleRate(),
		Channels:   s.engine.Channels(),
	}
	if req != nil {
		if req.Codec != "" {
			f.Codec = req.Codec
		}
		if req.Channels != 0 {
			f.Channels = req.Channels
		}
	}
	if toAudioFormat(f).Validate() != nil {
		f.Codec = audio.CodecInt16
		f.Channels = s.engine.Channels()
	}
	return f
}

func toAudioFormat(f protocol.AudioFormat) audio.Format {
	return audio.Format{Codec: f.Codec, SampleRate: f.SampleRate, Channels: f.Channels, BitDepth: f.BitDepth}
}

// runProducer queues decoded frames into the write side until the client leaves
func (s *Server) runProducer(client *Client) {
	format := toAudioFormat(client.Format)
	decoder, err := decode.New(format)
	if err != nil {
		s.sendError(client, protocol.ErrorUnsupportedValue, err.Error())
		return
	}
	defer decoder.Close()

	frameType, err := protocol.FrameTypeForCodec(format.Codec)
	if err != nil {
		s.sendError(client, protocol.ErrorUnsupportedValue, err.Error())
		return
	}

	channels := s.engine.Channels()
	stream := hal.NewStreamProducer(channels, s.config.ProducerBufferFrames)
	id, err := s.host.AttachProducer(client.Endpoint, stream)
	if err != nil {
		s.sendError(client, errorCode(err), err.Error())
		return
	}
	defer func() {
		stream.Close()
		if err := s.host.Detach(id); err != nil {
			s.logger.Warn("failed to detach producer", "client", client.Name, "error", err)
		}
		s.logger.Debug("producer finished", "client", client.Name, "underruns", stream.Underruns())
	}()

	s.readLoop(client, func(data []byte) error {
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			return err
		}
		if frame.Type != frameType {
			return fmt.Errorf("expected frame type %d, got %d", frameType, frame.Type)
		}
		samples, err := decoder.Decode(frame.Payload)
		if err != nil {
			return err
		}
		if format.Channels != channels {
			samples = audio.Remix(samples, format.Channels, channels)
		}
		client.framesIn.Add(uint64(len(samples) / channels))
		return stream.Push(client.ctx, samples)
	})
}

// runConsumer streams the read side to the client until it leaves
func (s *Server) runConsumer(client *Client) {
	format := toAudioFormat(client.Format)
	encoder, err := encode.New(format)
	if err != nil {
		s.sendError(client, protocol.ErrorUnsupportedValue, err.Error())
		return
	}
	defer encoder.Close()

	frameType, err := protocol.FrameTypeForCodec(format.Codec)
	if err != nil {
		s.sendError(client, protocol.ErrorUnsupportedValue, err.Error())
		return
	}

	tap := hal.NewTap(tapDepth)
	id, err := s.host.AttachConsumer(client.Endpoint, tap)
	if err != nil {
		s.sendError(client, errorCode(err), err.Error())
		return
	}
	defer func() {
		if err := s.host.Detach(id); err != nil {
			s.logger.Warn("failed to detach consumer", "client", client.Name, "error", err)
		}
		tap.Close()
		s.logger.Debug("consumer finished", "client", client.Name, "dropped_cycles", tap.Dropped())
	}()

	client.streams.Add(1)
	go func() {
		defer client.streams.Done()
		s.streamTap(client, tap, encoder, frameType, format.Channels)
	}()

	s.readLoop(client, nil)
	client.cancel()
}

// streamTap encodes cycles from tap into binary frames. The frame sample time
// counts frames since the stream started, including frames the tap dropped.
func (s *Server) streamTap(client *Client, tap *hal.Tap, encoder encode.Encoder, frameType byte, channels int) {
	framer := &tapFramer{
		encoder:        encoder,
		frameType:      frameType,
		deviceChannels: s.engine.Channels(),
		channels:       channels,
	}

	for {
		var cycle hal.TapCycle
		select {
		case c, ok := <-tap.C():
			if !ok {
				return
			}
			cycle = c
		case <-client.ctx.Done():
			return
		}

		err := framer.push(cycle, func(frame []byte, frames int) {
			s.sendBinary(client, frame)
			client.framesOut.Add(uint64(frames))
		})
		if err != nil {
			s.logger.Warn("encode failed", "client", client.Name, "error", err)
			return
		}
	}
}

// tapFramer cuts tap cycles into encoder-sized chunks and stamps each with
// its position in the stream
type tapFramer struct {
	encoder        encode.Encoder
	frameType      byte
	deviceChannels int
	channels       int

	pending  []float32
	position int64
}

// push encodes cycle and hands every complete frame to emit. A cycle that
// follows dropped ones discards the partial chunk and skips the position past
// the gap, so the receiver sees the hole instead of a splice.
func (f *tapFramer) push(cycle hal.TapCycle, emit func(frame []byte, frames int)) error {
	if cycle.Skipped > 0 {
		lost := len(f.pending)/f.channels + cycle.Skipped/f.deviceChannels
		f.position += int64(lost)
		f.pending = nil
	}

	buf := cycle.Samples
	if f.channels != f.deviceChannels {
		buf = audio.Remix(buf, f.deviceChannels, f.channels)
	}
	f.pending = append(f.pending, buf...)

	chunk := f.encoder.FrameSamples()
	for len(f.pending) > 0 && (chunk == 0 || len(f.pending) >= chunk) {
		n := len(f.pending)
		if chunk > 0 {
			n = chunk
		}
		payload, err := f.encoder.Encode(f.pending[:n])
		if err != nil {
			return err
		}
		frames := n / f.channels
		emit(protocol.EncodeFrame(f.frameType, f.position, payload), frames)
		f.position += int64(frames)
		f.pending = f.pending[n:]
	}
	// Copy the remainder so the consumed prefix can be collected
	f.pending = slices.Clone(f.pending)
	return nil
}
