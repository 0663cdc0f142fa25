// ABOUTME: Binary audio frame encoding for the websocket stream
// ABOUTME: One type byte, a big-endian sample time and the encoded payload
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/loopback-go/pkg/audio"
)

// Binary frame types
const (
	FrameFloat32 byte = 1
	FrameInt16   byte = 2
	FrameOpus    byte = 3
)

// FrameHeaderSize is the type byte plus the sample time
const FrameHeaderSize = 9

// ErrShortFrame is returned for frames without a complete header
var ErrShortFrame = errors.New("frame too short")

// Frame is one binary audio message
type Frame struct {
	Type       byte
	SampleTime int64
	Payload    []byte
}

// EncodeFrame creates a binary audio message
func EncodeFrame(frameType byte, sampleTime int64, payload []byte) []byte {
	// Binary format: [type:1][sample_time:8][payload:N]
	data := make([]byte, FrameHeaderSize+len(payload))
	data[0] = frameType
	binary.BigEndian.PutUint64(data[1:9], uint64(sampleTime))
	copy(data[FrameHeaderSize:], payload)
	return data
}

// DecodeFrame parses a binary audio message. Payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < FrameHeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	f := Frame{
		Type:       data[0],
		SampleTime: int64(binary.BigEndian.Uint64(data[1:9])),
		Payload:    data[FrameHeaderSize:],
	}
	if _, err := CodecForFrame(f.Type); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// FrameTypeForCodec maps a codec name to its frame type
func FrameTypeForCodec(codec string) (byte, error) {
	switch codec {
	case audio.CodecFloat32:
		return FrameFloat32, nil
	case audio.CodecInt16:
		return FrameInt16, nil
	case audio.CodecOpus:
		return FrameOpus, nil
	}
	return 0, fmt.Errorf("unsupported codec: %s", codec)
}

// CodecForFrame maps a frame type to its codec name
func CodecForFrame(frameType byte) (string, error) {
	switch frameType {
	case FrameFloat32:
		return audio.CodecFloat32, nil
	case FrameInt16:
		return audio.CodecInt16, nil
	case FrameOpus:
		return audio.CodecOpus, nil
	}
	return "", fmt.Errorf("unknown frame type: %d", frameType)
}
