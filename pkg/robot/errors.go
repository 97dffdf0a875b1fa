package robot

import (
	"errors"
	"fmt"
)

var (
	// ErrSafetyViolation is matched by every SafetyViolation.
	ErrSafetyViolation = errors.New("safety violation")
	// ErrLeaseReleased is returned when a command is sent through a released lease.
	ErrLeaseReleased = errors.New("actuator lease released")
	// ErrRoleMismatch is returned when an actuator id is requested under a second role.
	ErrRoleMismatch = errors.New("actuator already registered with another role")
)

// TransportError is a failed query or command round trip.
type TransportError struct {
	Actuator ID
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s actuator %d: %v", e.Op, e.Actuator, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError is an out-of-range configuration or command value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// SafetyViolation is an attempt to command an actuator that another loop
// currently drives.
type SafetyViolation struct {
	Actuator  ID
	Holder    string
	Requester string
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("%s: actuator %d is driven by %s, refusing %s", ErrSafetyViolation, e.Actuator, e.Holder, e.Requester)
}

func (e *SafetyViolation) Unwrap() error {
	return ErrSafetyViolation
}
