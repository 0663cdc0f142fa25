// ABOUTME: Loopback control protocol message type definitions
// ABOUTME: Defines structs for every JSON message exchanged over the websocket
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version carried in hello messages
const Version = 1

// Message types
const (
	TypeClientHello     = "client/hello"
	TypeServerHello     = "server/hello"
	TypeDeviceState     = "device/state"
	TypeDeviceControl   = "device/control"
	TypePropertyChanged = "device/property_changed"
	TypeDeviceEvent     = "device/event"
	TypeServerError     = "server/error"
)

// Client roles
const (
	RoleController = "controller"
	RoleProducer   = "producer"
	RoleConsumer   = "consumer"
)

// Control commands
const (
	CommandVolume      = "volume"
	CommandVolumeDB    = "volume_db"
	CommandMute        = "mute"
	CommandDrift       = "drift"
	CommandClockSource = "clock_source"
	CommandSampleRate  = "sample_rate"
	CommandBoxName     = "box_name"
	CommandBoxAcquired = "box_acquired"
)

// Error codes
const (
	ErrorDuplicateClient  = "duplicate_client_id"
	ErrorBadRequest       = "bad_request"
	ErrorBadObject        = "bad_object"
	ErrorUnsupportedValue = "unsupported_value"
	ErrorIllegalOperation = "illegal_operation"
	ErrorOverload         = "overload"
	ErrorInternal         = "internal"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// DecodePayload re-decodes a generic payload into v
func DecodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// AudioFormat describes the samples carried in binary frames
type AudioFormat struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth,omitempty"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Role     string `json:"role"`
	// Endpoint is "primary" or "mirror" for producers and consumers
	Endpoint string `json:"endpoint,omitempty"`
	// Format is what a producer sends or what a consumer wants to receive
	Format *AudioFormat `json:"format,omitempty"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID       string       `json:"server_id"`
	Name           string       `json:"name"`
	Version        int          `json:"version"`
	ProductVersion string       `json:"product_version"`
	Format         *AudioFormat `json:"format,omitempty"`
}

// BoxState mirrors the device box
type BoxState struct {
	Name     string `json:"name"`
	Acquired bool   `json:"acquired"`
}

// DeviceInfo describes one visible endpoint
type DeviceInfo struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
	UID      string `json:"uid"`
	Channels int    `json:"channels"`
	Running  bool   `json:"running"`
}

// Counters are cumulative transfer statistics
type Counters struct {
	Writes    uint64 `json:"writes"`
	Reads     uint64 `json:"reads"`
	Squelched uint64 `json:"squelched"`
	Overloads uint64 `json:"overloads"`
}

// DeviceState is a snapshot of the device sent on connect and after changes
type DeviceState struct {
	SampleRate          int          `json:"sample_rate"`
	RequestedSampleRate int          `json:"requested_sample_rate"`
	Channels            int          `json:"channels"`
	RingFrames          int          `json:"ring_frames"`
	Volume              float64      `json:"volume"`
	VolumeScalar        float64      `json:"volume_scalar"`
	VolumeDB            float64      `json:"volume_db"`
	Mute                bool         `json:"mute"`
	Drift               float64      `json:"drift"`
	ClockSource         int          `json:"clock_source"`
	ClockSourceName     string       `json:"clock_source_name"`
	PrimaryClients      uint64       `json:"primary_clients"`
	MirrorClients       uint64       `json:"mirror_clients"`
	Pending             string       `json:"pending,omitempty"`
	Box                 BoxState     `json:"box"`
	Devices             []DeviceInfo `json:"devices"`
	Counters            Counters     `json:"counters"`
	LastWriteSampleTime *int64       `json:"last_write_sample_time,omitempty"`
}

// DeviceControl is a command from a controller.
// Value carries numeric arguments, Enabled boolean ones and Name the box name.
type DeviceControl struct {
	Command string  `json:"command"`
	Value   float64 `json:"value,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
	Name    string  `json:"name,omitempty"`
}

// PropertyChanged notifies clients that properties of an object changed
type PropertyChanged struct {
	Object     string   `json:"object"`
	Properties []string `json:"properties"`
}

// DeviceEvent reports an endpoint starting or stopping I/O
type DeviceEvent struct {
	Endpoint string `json:"endpoint"`
	DeviceID int    `json:"device_id"`
	Event    string `json:"event"`
}

// ServerError reports a failed request
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
