package servobus

import (
	"math"
	"time"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

// TicksPerRotation is the resolution of an STS servo's position encoder.
const TicksPerRotation = 4096

// MaxLead bounds how far a velocity-mode goal may run ahead of the measured
// position. A goal held at MaxLead means the servo is blocked.
const MaxLead = 0.1

// joint tracks one servo in rotations of its own motor frame and converts
// commands into position goals.
type joint struct {
	offset float64 // reported = motor + offset

	measured float64
	at       time.Time
	seen     bool
	velocity float64

	goal      float64
	plannedAt time.Time
	driving   bool
	cap       float64
}

// observe folds a raw encoder reading into the joint and returns telemetry.
// Torque is estimated from how far the goal leads the measured position.
func (j *joint) observe(raw int, at time.Time) robot.Telemetry {
	pos := float64(raw) / TicksPerRotation
	if j.seen {
		if dt := at.Sub(j.at).Seconds(); dt > 0 {
			j.velocity = (pos - j.measured) / dt
		}
	}
	j.measured = pos
	j.at = at
	j.seen = true

	return robot.Telemetry{
		Position:  pos + j.offset,
		Velocity:  j.velocity,
		Torque:    j.torque(),
		SampledAt: at,
	}
}

func (j *joint) torque() float64 {
	if !j.driving {
		return 0
	}
	lead := math.Max(-1, math.Min(1, (j.goal-j.measured)/MaxLead))
	return lead * j.cap
}

// plan turns cmd into a raw goal. drive is false when cmd leaves both position
// and velocity free, which a position servo can only honour with torque off.
func (j *joint) plan(cmd robot.Command, now time.Time) (goal int, drive bool) {
	dt := 0.0
	if j.driving {
		dt = math.Max(0, now.Sub(j.plannedAt).Seconds())
	} else {
		j.goal = j.measured
	}
	j.plannedAt = now

	target, hasPosition := cmd.Position.Value()
	velocity, hasVelocity := cmd.Velocity.Value()

	switch {
	case hasPosition:
		want := target - j.offset
		if limit, ok := cmd.VelocityLimit.Value(); ok {
			step := limit * dt
			want = j.goal + math.Max(-step, math.Min(step, want-j.goal))
		}
		j.goal = want
	case hasVelocity:
		lead := math.Max(-MaxLead, math.Min(MaxLead, j.goal+velocity*dt-j.measured))
		j.goal = j.measured + lead
	default:
		j.driving = false
		return 0, false
	}

	j.driving = true
	j.cap = cmd.MaximumTorque
	return int(math.Round(j.goal * TicksPerRotation)), true
}

// release marks the servo as unpowered.
func (j *joint) release() {
	j.driving = false
}

// reference makes the measured position read as value.
func (j *joint) reference(value float64) {
	j.offset = value - j.measured
}
