// ABOUTME: Error taxonomy for the loopback engine
// ABOUTME: Sentinel errors matched with errors.Is plus an operation-scoped wrapper
package loopback

import (
	"errors"
	"fmt"
)

var (
	// ErrBadObject reports an invalid endpoint, stream, buffer or frame count.
	ErrBadObject = errors.New("bad object")

	// ErrUnsupportedValue reports a value outside a supported discrete set.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrOverload reports a write that arrived after its deadline. The ring is untouched.
	ErrOverload = errors.New("overload: write missed its deadline")

	// ErrIllegalOperation reports a lifecycle or reconfiguration contract violation.
	ErrIllegalOperation = errors.New("illegal operation")

	// ErrNotRunning reports a transfer while no endpoint is running.
	ErrNotRunning = fmt.Errorf("%w: device is not running", ErrIllegalOperation)
)

// OpError records the operation and endpoint that failed
type OpError struct {
	Op       string
	Endpoint Endpoint
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op string, endpoint Endpoint, err error) error {
	return &OpError{Op: op, Endpoint: endpoint, Err: err}
}
