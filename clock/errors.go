package clock

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Run when the control loop is already
// active.
var ErrAlreadyRunning = errors.New("clock: control loop already running")

// ListenerFailure describes a pulse listener or a scheduled handler that
// failed while being notified. The failure is contained at the dispatch
// boundary and reported, never propagated to the control loop.
type ListenerFailure struct {
	Listener string
	PulseID  uint64
	Cause    error
}

func (f *ListenerFailure) Error() string {
	return fmt.Sprintf("listener %s failed on pulse %d: %v",
		f.Listener, f.PulseID, f.Cause)
}

func (f *ListenerFailure) Unwrap() error {
	return f.Cause
}

// Recovered converts a value obtained from recover into a ListenerFailure.
func Recovered(listener string, pulseID uint64, r any) *ListenerFailure {
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}

	return &ListenerFailure{
		Listener: listener,
		PulseID:  pulseID,
		Cause:    cause,
	}
}
