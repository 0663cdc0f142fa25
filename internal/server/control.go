// ABOUTME: Controller commands mapped onto the engine's control surface
// ABOUTME: Translates engine errors into protocol error codes
package server

import (
	"errors"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

var errBadRequest = errors.New("bad request")

// applyControl runs one controller command
func (s *Server) applyControl(ctl protocol.DeviceControl) error {
	e := s.engine

	switch ctl.Command {
	case protocol.CommandVolume:
		return e.SetVolume(ctl.Value)
	case protocol.CommandVolumeDB:
		return e.SetVolumeDecibel(ctl.Value)
	case protocol.CommandMute:
		if ctl.Enabled == nil {
			return fmt.Errorf("%w: mute needs enabled", errBadRequest)
		}
		e.SetMute(*ctl.Enabled)
	case protocol.CommandDrift:
		return e.SetDrift(ctl.Value)
	case protocol.CommandClockSource:
		index, err := integral(ctl)
		if err != nil {
			return err
		}
		return e.SetClockSource(index)
	case protocol.CommandSampleRate:
		rate, err := integral(ctl)
		if err != nil {
			return err
		}
		return e.RequestSampleRateChange(rate)
	case protocol.CommandBoxName:
		return e.SetBoxName(ctl.Name)
	case protocol.CommandBoxAcquired:
		if ctl.Enabled == nil {
			return fmt.Errorf("%w: box_acquired needs enabled", errBadRequest)
		}
		return e.SetBoxAcquired(*ctl.Enabled)
	default:
		return fmt.Errorf("%w: unknown command %q", errBadRequest, ctl.Command)
	}
	return nil
}

// integral returns ctl.Value as an int, rejecting fractional or out of range values
func integral(ctl protocol.DeviceControl) (int, error) {
	v := ctl.Value
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s needs an integer, got %v", loopback.ErrUnsupportedValue, ctl.Command, v)
	}
	return int(v), nil
}

// errorCode maps an error to its protocol code
func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return protocol.ErrorBadRequest
	case errors.Is(err, loopback.ErrBadObject):
		return protocol.ErrorBadObject
	case errors.Is(err, loopback.ErrUnsupportedValue):
		return protocol.ErrorUnsupportedValue
	case errors.Is(err, loopback.ErrIllegalOperation):
		return protocol.ErrorIllegalOperation
	case errors.Is(err, loopback.ErrOverload):
		return protocol.ErrorOverload
	default:
		return protocol.ErrorInternal
	}
}
