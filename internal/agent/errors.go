package agent

import "errors"

// ErrNotConnected is matched by [*NotConnectedError] via errors.Is.
var ErrNotConnected = errors.New("not connected to a tool server")

// NotConnectedError is returned by ProcessQuery when no tool transport
// is available.
type NotConnectedError struct {
	Reason string
}

func (e *NotConnectedError) Error() string {
	if e.Reason == "" {
		return ErrNotConnected.Error()
	}
	return ErrNotConnected.Error() + ": " + e.Reason
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }
