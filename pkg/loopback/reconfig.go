// ABOUTME: Single-slot two-phase reconfiguration state machine
// ABOUTME: Tracks one in-flight request until the host performs or aborts it
package loopback

import "fmt"

// ReconfigState is the lifecycle tag of a reconfiguration request
type ReconfigState int

const (
	ReconfigIdle ReconfigState = iota
	ReconfigRequested
	ReconfigApplied
	ReconfigAborted
)

func (s ReconfigState) String() string {
	switch s {
	case ReconfigIdle:
		return "idle"
	case ReconfigRequested:
		return "requested"
	case ReconfigApplied:
		return "applied"
	case ReconfigAborted:
		return "aborted"
	default:
		return fmt.Sprintf("reconfig_state(%d)", int(s))
	}
}

// Reconfiguration is the most recent request and its resolution
type Reconfiguration struct {
	Action Action
	State  ReconfigState
}

// InFlight reports whether the request still waits for Perform or Abort
func (r Reconfiguration) InFlight() bool {
	return r.State == ReconfigRequested
}

// reconfigSlot holds at most one in-flight request. Guarded by the engine state lock.
type reconfigSlot struct {
	current Reconfiguration
}

// request opens the slot for action. issue is false when an identical request
// is already in flight and the host has been told about it.
func (s *reconfigSlot) request(action Action) (issue bool, err error) {
	if s.current.InFlight() {
		if s.current.Action == action {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s requested while %s is pending", ErrIllegalOperation, action, s.current.Action)
	}
	s.current = Reconfiguration{Action: action, State: ReconfigRequested}
	return true, nil
}

// check verifies that action matches the in-flight request
func (s *reconfigSlot) check(action Action) error {
	if !s.current.InFlight() {
		return fmt.Errorf("%w: no pending request for %s", ErrIllegalOperation, action)
	}
	if s.current.Action != action {
		return fmt.Errorf("%w: pending request is %s, not %s", ErrIllegalOperation, s.current.Action, action)
	}
	return nil
}

func (s *reconfigSlot) resolve(state ReconfigState) {
	s.current.State = state
}

// pending reports whether action is in flight
func (s *reconfigSlot) pending(action Action) bool {
	return s.current.InFlight() && s.current.Action == action
}
