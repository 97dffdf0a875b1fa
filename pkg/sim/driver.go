// Package sim simulates a pair of gripper actuators with mechanical hard
// stops, for dry runs without hardware and for integration tests.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

// ErrUnknownActuator is returned for ids the simulation does not know.
var ErrUnknownActuator = errors.New("unknown actuator")

// DefaultSpeed is the slew rate of position commands without a velocity limit.
const DefaultSpeed = 2.0

// Axis describes one simulated actuator in its own motor frame.
type Axis struct {
	Lower    float64 // hard stop, rotations
	Upper    float64 // hard stop, rotations
	Start    float64 // initial position
	Friction float64 // torque needed to move, N·m
}

// DefaultAxis is a gripper with about six rotations of travel.
func DefaultAxis() Axis {
	return Axis{Lower: -0.25, Upper: 6.5, Start: 1, Friction: 0.005}
}

// Operator returns where a hand holds the actuator, elapsed after the
// simulation started. It only acts while the actuator is not driven.
type Operator func(elapsed time.Duration) float64

type axis struct {
	Axis
	raw      float64
	offset   float64
	velocity float64
	torque   float64
	cmd      robot.Command
	driven   bool
	operator Operator
	last     time.Time
}

// Driver is a robot.Driver backed by a kinematic model.
type Driver struct {
	now   func() time.Time
	start time.Time

	mu   sync.Mutex
	axes map[robot.ID]*axis
}

// Option configures a Driver.
type Option func(*Driver)

// WithAxis adds an actuator.
func WithAxis(id robot.ID, a Axis) Option {
	return func(d *Driver) {
		d.axes[id] = &axis{Axis: a, raw: clamp(a.Start, a.Lower, a.Upper)}
	}
}

// WithOperator lets op move id while it is not driven.
func WithOperator(id robot.ID, op Operator) Option {
	return func(d *Driver) {
		if a, ok := d.axes[id]; ok {
			a.operator = op
		}
	}
}

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New creates a simulation. Options are applied in order, so WithOperator
// must follow the WithAxis it refers to.
func New(opts ...Option) *Driver {
	d := &Driver{now: time.Now, axes: make(map[robot.ID]*axis)}
	for _, opt := range opts {
		opt(d)
	}
	d.start = d.now()
	for _, a := range d.axes {
		a.last = d.start
	}
	return d
}

// ForConfig creates a simulation of the leader and follower cfg names. The
// leader is squeezed slowly by a simulated hand.
func ForConfig(cfg *robot.Config) *Driver {
	return New(
		WithAxis(cfg.Leader.ID, DefaultAxis()),
		WithAxis(cfg.Follower.ID, DefaultAxis()),
		WithOperator(cfg.Leader.ID, Squeeze(1, 3, 4*time.Second)),
	)
}

// Squeeze is an operator that moves between lo and hi once per period.
func Squeeze(lo, hi float64, period time.Duration) Operator {
	return func(elapsed time.Duration) float64 {
		phase := 2 * math.Pi * elapsed.Seconds() / period.Seconds()
		return lo + (hi-lo)*(1-math.Cos(phase))/2
	}
}

func (d *Driver) Query(ctx context.Context, id robot.ID) (robot.Telemetry, error) {
	if err := ctx.Err(); err != nil {
		return robot.Telemetry{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.axis(id)
	if err != nil {
		return robot.Telemetry{}, err
	}
	return d.advance(a), nil
}

func (d *Driver) SetPosition(ctx context.Context, id robot.ID, cmd robot.Command) (robot.Telemetry, error) {
	if err := ctx.Err(); err != nil {
		return robot.Telemetry{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.axis(id)
	if err != nil {
		return robot.Telemetry{}, err
	}
	t := d.advance(a)
	a.cmd = cmd
	a.driven = true
	return t, nil
}

func (d *Driver) SetStop(_ context.Context, id robot.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.axis(id)
	if err != nil {
		return err
	}
	d.advance(a)
	a.driven = false
	a.cmd = robot.Command{}
	a.velocity = 0
	a.torque = 0
	return nil
}

func (d *Driver) SetAbsoluteReference(ctx context.Context, id robot.ID, value float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.axis(id)
	if err != nil {
		return err
	}
	d.advance(a)
	a.offset = value - a.raw
	return nil
}

// Raw returns id's position in its motor frame, ignoring any reference.
func (d *Driver) Raw(id robot.ID) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.axes[id]; ok {
		return a.raw
	}
	return math.NaN()
}

func (d *Driver) axis(id robot.ID) (*axis, error) {
	a, ok := d.axes[id]
	if !ok {
		return nil, fmt.Errorf("actuator %d: %w", id, ErrUnknownActuator)
	}
	return a, nil
}

// advance integrates a's motion up to now and returns its telemetry.
func (d *Driver) advance(a *axis) robot.Telemetry {
	now := d.now()
	dt := now.Sub(a.last).Seconds()
	a.last = now

	velocity, hasVelocity := a.cmd.Velocity.Value()
	target, hasPosition := a.cmd.Position.Value()

	switch {
	case a.driven && hasPosition:
		speed := a.cmd.VelocityLimit.Or(DefaultSpeed)
		want := target - a.offset
		step := clamp(want-a.raw, -speed*dt, speed*dt)
		a.move(step, dt, a.cmd.MaximumTorque)
	case a.driven && hasVelocity && velocity != 0:
		a.move(velocity*dt, dt, a.cmd.MaximumTorque)
	case a.operator != nil:
		before := a.raw
		a.raw = clamp(a.operator(now.Sub(d.start)), a.Lower, a.Upper)
		a.velocity = rate(a.raw-before, dt)
		a.torque = 0
		if a.driven && a.velocity != 0 {
			// The hold torque resists the hand.
			a.torque = -math.Copysign(math.Min(a.cmd.MaximumTorque, a.Friction), a.velocity)
		}
	default:
		a.velocity = 0
		a.torque = 0
	}

	return robot.Telemetry{
		Position:  a.raw + a.offset,
		Velocity:  a.velocity,
		Torque:    a.torque,
		SampledAt: now,
	}
}

// move advances by step unless friction exceeds the torque cap. Pushing
// into a hard stop saturates torque at the cap.
func (a *axis) move(step, dt, maxTorque float64) {
	if step == 0 {
		a.velocity = 0
		a.torque = 0
		return
	}
	dir := math.Copysign(1, step)
	if maxTorque < a.Friction {
		a.velocity = 0
		a.torque = dir * maxTorque
		return
	}

	next := clamp(a.raw+step, a.Lower, a.Upper)
	blocked := next != a.raw+step
	a.velocity = rate(next-a.raw, dt)
	a.raw = next
	if blocked {
		a.torque = dir * maxTorque
	} else {
		a.torque = dir * a.Friction
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func rate(delta, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	return delta / dt
}

var _ robot.Driver = (*Driver)(nil)
