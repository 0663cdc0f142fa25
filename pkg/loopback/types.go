// ABOUTME: Identifier and enum types shared by the engine and its host
// ABOUTME: Endpoints, streams, directions, objects, properties and reconfiguration actions
package loopback

import "fmt"

// Endpoint is one of the two logical devices sharing the engine
type Endpoint int

const (
	Primary Endpoint = iota
	Mirror
)

// Endpoints lists every endpoint in ID order
var Endpoints = []Endpoint{Primary, Mirror}

func (e Endpoint) String() string {
	switch e {
	case Primary:
		return "primary"
	case Mirror:
		return "mirror"
	default:
		return fmt.Sprintf("endpoint(%d)", int(e))
	}
}

// Valid reports whether e names a known endpoint
func (e Endpoint) Valid() bool {
	return e == Primary || e == Mirror
}

// DeviceID is the 1-based device number used on the event socket
func (e Endpoint) DeviceID() uint8 {
	return uint8(e) + 1
}

// Object returns the device object for the endpoint
func (e Endpoint) Object() ObjectID {
	if e == Mirror {
		return ObjectDeviceMirror
	}
	return ObjectDevice
}

// ParseEndpoint accepts "primary", "mirror", "1" or "2"
func ParseEndpoint(s string) (Endpoint, error) {
	switch s {
	case "primary", "1", "":
		return Primary, nil
	case "mirror", "2":
		return Mirror, nil
	}
	return 0, fmt.Errorf("%w: endpoint %q", ErrBadObject, s)
}

// Direction selects the side of a transfer
type Direction int

const (
	// ReadInput copies from the ring to the caller
	ReadInput Direction = iota
	// WriteMix copies from the caller into the ring
	WriteMix
)

func (d Direction) String() string {
	switch d {
	case ReadInput:
		return "read"
	case WriteMix:
		return "write"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// StreamID identifies a stream on an endpoint
type StreamID int

const (
	StreamInput StreamID = iota
	StreamOutput
)

// CycleInfo carries the sample times of one host I/O cycle
type CycleInfo struct {
	CurrentTime int64
	InputTime   int64
	OutputTime  int64
}

// ObjectID names an object whose properties the host can observe
type ObjectID int

const (
	ObjectPlugIn ObjectID = iota + 1
	ObjectBox
	ObjectDevice
	ObjectDeviceMirror
	ObjectVolume
	ObjectMute
	ObjectDrift
	ObjectClockSource
)

func (o ObjectID) String() string {
	switch o {
	case ObjectPlugIn:
		return "plugin"
	case ObjectBox:
		return "box"
	case ObjectDevice:
		return "device"
	case ObjectDeviceMirror:
		return "device_mirror"
	case ObjectVolume:
		return "volume"
	case ObjectMute:
		return "mute"
	case ObjectDrift:
		return "drift"
	case ObjectClockSource:
		return "clock_source"
	default:
		return fmt.Sprintf("object(%d)", int(o))
	}
}

// Property names an observable value on an object
type Property int

const (
	PropertyName Property = iota + 1
	PropertyAcquired
	PropertyDeviceList
	PropertyScalarValue
	PropertyDecibelValue
	PropertyMuteValue
	PropertyDriftValue
	PropertyCurrentItem
	PropertyNominalSampleRate
	PropertyControlList
	PropertyIsRunning
)

func (p Property) String() string {
	switch p {
	case PropertyName:
		return "name"
	case PropertyAcquired:
		return "acquired"
	case PropertyDeviceList:
		return "device_list"
	case PropertyScalarValue:
		return "scalar_value"
	case PropertyDecibelValue:
		return "decibel_value"
	case PropertyMuteValue:
		return "mute_value"
	case PropertyDriftValue:
		return "drift_value"
	case PropertyCurrentItem:
		return "current_item"
	case PropertyNominalSampleRate:
		return "nominal_sample_rate"
	case PropertyControlList:
		return "control_list"
	case PropertyIsRunning:
		return "is_running"
	default:
		return fmt.Sprintf("property(%d)", int(p))
	}
}

// ClockSource selects how the virtual clock derives its tick rate
type ClockSource int

const (
	// ClockFixed runs at the nominal host ticks per frame
	ClockFixed ClockSource = iota
	// ClockAdjustable applies the drift amount
	ClockAdjustable
)

// ClockSourceNames are the selector item names in index order
var ClockSourceNames = []string{"Internal Fixed", "Internal Adjustable"}

func (c ClockSource) String() string {
	if c >= 0 && int(c) < len(ClockSourceNames) {
		return ClockSourceNames[c]
	}
	return fmt.Sprintf("clock_source(%d)", int(c))
}

// Action tags a requested reconfiguration
type Action int

const (
	ActionSetSampleRate Action = iota + 1
	ActionEnableDrift
	ActionDisableDrift
)

func (a Action) String() string {
	switch a {
	case ActionSetSampleRate:
		return "set_sample_rate"
	case ActionEnableDrift:
		return "enable_drift"
	case ActionDisableDrift:
		return "disable_drift"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}
