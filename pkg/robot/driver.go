package robot

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Telemetry is one sample of an actuator's state.
type Telemetry struct {
	Position  float64 // rotations
	Velocity  float64 // rotations per second
	Torque    float64 // N·m
	SampledAt time.Time
}

// Axis is one axis of a motion command: either a concrete value or
// Unconstrained, which leaves that axis to the controller.
type Axis struct {
	value float64
	set   bool
}

// Unconstrained leaves an axis free.
var Unconstrained = Axis{}

// At constrains an axis to v.
func At(v float64) Axis {
	return Axis{value: v, set: true}
}

// Value returns the constrained value and whether the axis is constrained.
func (a Axis) Value() (float64, bool) {
	return a.value, a.set
}

// Constrained reports whether the axis carries a value.
func (a Axis) Constrained() bool {
	return a.set
}

// Or returns the axis value, or fallback when unconstrained.
func (a Axis) Or(fallback float64) float64 {
	if !a.set {
		return fallback
	}
	return a.value
}

func (a Axis) String() string {
	if !a.set {
		return "free"
	}
	return strconv.FormatFloat(a.value, 'f', 4, 64)
}

// Command is a motion command. Position and Velocity select the control
// mode: position-only holds a target, velocity-only drives at a speed,
// both free lets the actuator be back-driven under MaximumTorque.
type Command struct {
	Position      Axis
	Velocity      Axis
	VelocityLimit Axis
	AccelLimit    Axis
	MaximumTorque float64
	KpScale       Axis
	KdScale       Axis
}

// Validate rejects non-finite axis values and a missing or negative torque cap.
func (c Command) Validate() error {
	if math.IsNaN(c.MaximumTorque) || math.IsInf(c.MaximumTorque, 0) || c.MaximumTorque <= 0 {
		return &ValidationError{Field: "maximum_torque", Value: c.MaximumTorque, Reason: "must be a positive finite torque"}
	}
	axes := []struct {
		name string
		axis Axis
	}{
		{"position", c.Position},
		{"velocity", c.Velocity},
		{"velocity_limit", c.VelocityLimit},
		{"accel_limit", c.AccelLimit},
		{"kp_scale", c.KpScale},
		{"kd_scale", c.KdScale},
	}
	for _, a := range axes {
		v, ok := a.axis.Value()
		if ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
			return &ValidationError{Field: a.name, Value: v, Reason: "must be finite"}
		}
	}
	return nil
}

func (c Command) String() string {
	return fmt.Sprintf("pos=%s vel=%s torque<=%.3f", c.Position, c.Velocity, c.MaximumTorque)
}

// Driver is the capability the control loops need from an actuator
// controller. Implementations own the transport; every call may block for
// one round trip and must honour ctx.
type Driver interface {
	// Query reads current telemetry without commanding motion.
	Query(ctx context.Context, id ID) (Telemetry, error)
	// SetPosition commands motion and returns the telemetry observed with it.
	SetPosition(ctx context.Context, id ID, cmd Command) (Telemetry, error)
	// SetStop de-energizes the actuator immediately.
	SetStop(ctx context.Context, id ID) error
	// SetAbsoluteReference redefines the current physical position as value.
	SetAbsoluteReference(ctx context.Context, id ID, value float64) error
}
