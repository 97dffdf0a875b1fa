package robot

import (
	"math"
	"time"
)

// Crossing is the direction in which torque must pass the homing threshold.
type Crossing string

// Threshold crossing directions.
const (
	CrossBelow Crossing = "below"
	CrossAbove Crossing = "above"
)

// HomingProfile holds how one actuator finds its hard stop and which
// reference position that stop is given.
type HomingProfile struct {
	Velocity     float64       `yaml:"velocity"`   // probe velocity, sign sets direction
	MaxTorque    float64       `yaml:"max_torque"` // torque cap while probing
	Threshold    float64       `yaml:"threshold"`  // torque marking the hard stop
	Crossing     Crossing      `yaml:"crossing"`
	Reference    float64       `yaml:"reference"` // position assigned to the hard stop
	PollInterval time.Duration `yaml:"poll_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	Timeout      time.Duration `yaml:"timeout,omitempty"` // 0 probes until cancelled
}

// DefaultLeaderHoming drives the trigger negative until torque drops below -0.02.
func DefaultLeaderHoming() HomingProfile {
	return HomingProfile{
		Velocity:     -0.5,
		MaxTorque:    0.03,
		Threshold:    -0.02,
		Crossing:     CrossBelow,
		Reference:    0,
		PollInterval: 10 * time.Millisecond,
		SettleDelay:  100 * time.Millisecond,
	}
}

// DefaultFollowerHoming drives the gripper open until torque rises above 0.03
// and names that position 7, the fully-open reference.
func DefaultFollowerHoming() HomingProfile {
	return HomingProfile{
		Velocity:     0.5,
		MaxTorque:    0.05,
		Threshold:    0.03,
		Crossing:     CrossAbove,
		Reference:    7,
		PollInterval: 10 * time.Millisecond,
		SettleDelay:  100 * time.Millisecond,
	}
}

// Crossed reports whether torque has passed the threshold.
func (p HomingProfile) Crossed(torque float64) bool {
	switch p.Crossing {
	case CrossBelow:
		return torque < p.Threshold
	case CrossAbove:
		return torque > p.Threshold
	default:
		return false
	}
}

// Validate checks the profile; field prefixes error field names.
func (p HomingProfile) Validate(field string) error {
	switch {
	case !finite(p.Velocity) || p.Velocity == 0:
		return &ValidationError{Field: field + ".velocity", Value: p.Velocity, Reason: "must be non-zero"}
	case !finite(p.MaxTorque) || p.MaxTorque <= 0:
		return &ValidationError{Field: field + ".max_torque", Value: p.MaxTorque, Reason: "must be positive"}
	case !finite(p.Threshold):
		return &ValidationError{Field: field + ".threshold", Value: p.Threshold, Reason: "must be finite"}
	case p.Crossing != CrossBelow && p.Crossing != CrossAbove:
		return &ValidationError{Field: field + ".crossing", Value: p.Crossing, Reason: `must be "below" or "above"`}
	case math.Abs(p.Threshold) >= p.MaxTorque:
		return &ValidationError{Field: field + ".threshold", Value: p.Threshold, Reason: "unreachable under max_torque"}
	case !finite(p.Reference):
		return &ValidationError{Field: field + ".reference", Value: p.Reference, Reason: "must be finite"}
	case p.PollInterval <= 0:
		return &ValidationError{Field: field + ".poll_interval", Value: p.PollInterval, Reason: "must be positive"}
	case p.SettleDelay < 0:
		return &ValidationError{Field: field + ".settle_delay", Value: p.SettleDelay, Reason: "must not be negative"}
	case p.Timeout < 0:
		return &ValidationError{Field: field + ".timeout", Value: p.Timeout, Reason: "must not be negative"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
