package collector

import (
	"errors"
	"fmt"
)

var ErrAlreadyRunning = errors.New("sensor already running")

// ConnectError means the device was unreachable when the engine started.
// It ends that run.
type ConnectError struct {
	DeviceID string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.DeviceID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ReadError is a transient sample failure; Count is the consecutive
// failure count including this one.
type ReadError struct {
	DeviceID string
	Count    int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s (consecutive failure %d): %v", e.DeviceID, e.Count, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

type ReconnectError struct {
	DeviceID string
	Attempt  int
	Err      error
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("reconnect %s (attempt %d): %v", e.DeviceID, e.Attempt, e.Err)
}

func (e *ReconnectError) Unwrap() error { return e.Err }
