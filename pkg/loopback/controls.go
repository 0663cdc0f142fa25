// ABOUTME: Volume, mute, drift and clock-source controls of the loopback device
// ABOUTME: Changes notify the host; clock-source changes go through two-phase reconfiguration
package loopback

import (
	"fmt"
	"math"
)

// Volume returns the linear volume in [0,1]
func (e *Engine) Volume() float64 {
	return float64(math.Float32frombits(e.volume.Load()))
}

// VolumeScalar returns the volume on the dB-linear scalar scale
func (e *Engine) VolumeScalar() float64 {
	return VolumeToScalar(e.Volume())
}

// VolumeDecibel returns the volume in decibels, floored at MinDecibel
func (e *Engine) VolumeDecibel() float64 {
	return VolumeToDecibel(e.Volume())
}

// SetVolume sets the linear volume, clamped to [0,1]
func (e *Engine) SetVolume(volume float64) error {
	if math.IsNaN(volume) {
		return errNaN("set volume")
	}
	e.setVolume(clamp(volume, 0, 1))
	return nil
}

// SetVolumeScalar sets the volume from the dB-linear scalar scale
func (e *Engine) SetVolumeScalar(scalar float64) error {
	if math.IsNaN(scalar) {
		return errNaN("set volume scalar")
	}
	e.setVolume(clamp(VolumeFromScalar(clamp(scalar, 0, 1)), 0, 1))
	return nil
}

// SetVolumeDecibel sets the volume in decibels, clamped to [MinDecibel, MaxDecibel]
func (e *Engine) SetVolumeDecibel(decibel float64) error {
	if math.IsNaN(decibel) {
		return errNaN("set volume decibel")
	}
	e.setVolume(clamp(VolumeFromDecibel(clamp(decibel, MinDecibel, MaxDecibel)), 0, 1))
	return nil
}

func errNaN(op string) error {
	return opError(op, Primary, fmt.Errorf("%w: NaN", ErrUnsupportedValue))
}

func (e *Engine) setVolume(volume float64) {
	next := math.Float32bits(float32(volume))

	e.mu.Lock()
	changed := e.volume.Swap(next) != next
	e.mu.Unlock()

	if changed {
		e.host.PropertiesChanged(ObjectVolume, []Property{PropertyScalarValue, PropertyDecibelValue})
	}
}

// Mute reports whether reads are muted
func (e *Engine) Mute() bool {
	return e.muted.Load()
}

// SetMute sets the mute flag read by the transfer path
func (e *Engine) SetMute(muted bool) {
	e.mu.Lock()
	changed := e.muted.Swap(muted) != muted
	e.mu.Unlock()

	if changed {
		e.host.PropertiesChanged(ObjectMute, []Property{PropertyMuteValue})
	}
}

// Drift returns the drift amount in [0,1], 0.5 being no drift
func (e *Engine) Drift() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drift
}

// SetDrift sets the drift amount and recomputes the adjusted tick rate.
// The drift control only exists while the clock source is adjustable.
func (e *Engine) SetDrift(drift float64) error {
	if math.IsNaN(drift) {
		return errNaN("set drift")
	}
	drift = clamp(drift, 0, 1)

	e.mu.Lock()
	if e.clockSource != ClockAdjustable {
		e.mu.Unlock()
		return opError("set drift", Primary, fmt.Errorf("%w: drift control requires %s", ErrBadObject, ClockAdjustable))
	}
	changed := e.drift != drift
	if changed {
		e.drift = drift
		e.recomputeTicksLocked()
	}
	e.mu.Unlock()

	if changed {
		e.host.PropertiesChanged(ObjectDrift, []Property{PropertyDriftValue})
	}
	return nil
}

// ClockSource returns the applied clock-source mode
func (e *Engine) ClockSource() ClockSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clockSource
}

// SetClockSource requests a clock-source change by selector index.
// Indexes past the last item select the last item. The mode changes on Perform.
func (e *Engine) SetClockSource(index int) error {
	if index < 0 {
		return opError("set clock source", Primary, fmt.Errorf("%w: clock source index %d", ErrUnsupportedValue, index))
	}
	mode := ClockSource(min(index, len(ClockSourceNames)-1))
	return e.RequestClockSourceChange(mode)
}

// RequestClockSourceChange asks the host to switch the clock source to mode
func (e *Engine) RequestClockSourceChange(mode ClockSource) error {
	action := ActionDisableDrift
	switch mode {
	case ClockFixed:
	case ClockAdjustable:
		action = ActionEnableDrift
	default:
		return opError("set clock source", Primary, fmt.Errorf("%w: clock source %d", ErrUnsupportedValue, mode))
	}

	e.mu.Lock()
	if mode == e.clockSource && !e.reconfig.pending(ActionEnableDrift) && !e.reconfig.pending(ActionDisableDrift) {
		e.mu.Unlock()
		return nil
	}
	issue, err := e.reconfig.request(action)
	e.mu.Unlock()
	if err != nil {
		return opError("set clock source", Primary, err)
	}

	e.logger.Debug("clock source change requested", "mode", mode, "issued", issue)
	if issue {
		e.host.RequestConfigurationChange(Primary, action)
	}
	return nil
}

// ControlList returns the control objects exposed by endpoint
func (e *Engine) ControlList(endpoint Endpoint) ([]ObjectID, error) {
	switch endpoint {
	case Primary:
		controls := []ObjectID{ObjectVolume, ObjectMute, ObjectClockSource}
		if e.ClockSource() == ClockAdjustable {
			controls = append(controls, ObjectDrift)
		}
		return controls, nil
	case Mirror:
		return []ObjectID{ObjectVolume, ObjectMute}, nil
	default:
		return nil, opError("control list", endpoint, ErrBadObject)
	}
}
