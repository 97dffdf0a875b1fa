package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time           { return c.t }
func (c *manualClock) tick(d time.Duration)     { c.t = c.t.Add(d) }
func newClock() *manualClock                    { return &manualClock{t: time.Unix(1_700_000_000, 0)} }
func velocity(v, torque float64) robot.Command  { return robot.Command{Position: robot.Unconstrained, Velocity: robot.At(v), MaximumTorque: torque} }

func TestVelocityIntoHardStopSaturatesTorque(t *testing.T) {
	clock := newClock()
	d := New(WithClock(clock.now), WithAxis(1, Axis{Lower: -0.05, Upper: 5, Friction: 0.005}))
	ctx := context.Background()

	_, err := d.SetPosition(ctx, 1, velocity(-0.5, 0.03))
	require.NoError(t, err)

	clock.tick(50 * time.Millisecond)
	tel, err := d.SetPosition(ctx, 1, velocity(-0.5, 0.03))
	require.NoError(t, err)
	require.InDelta(t, -0.025, tel.Position, 1e-9)
	require.InDelta(t, -0.5, tel.Velocity, 1e-9)
	require.Equal(t, -0.005, tel.Torque)

	clock.tick(100 * time.Millisecond)
	tel, err = d.Query(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, -0.05, tel.Position)
	require.Equal(t, -0.03, tel.Torque)
}

func TestReferenceShiftsReportedPosition(t *testing.T) {
	clock := newClock()
	d := New(WithClock(clock.now), WithAxis(2, Axis{Lower: -1, Upper: 1, Start: 0.4, Friction: 0.005}))
	ctx := context.Background()

	require.NoError(t, d.SetAbsoluteReference(ctx, 2, 7))
	tel, err := d.Query(ctx, 2)
	require.NoError(t, err)
	require.InDelta(t, 7.0, tel.Position, 1e-12)
	require.Equal(t, 0.4, d.Raw(2))
}

func TestPositionModeSlewsAtVelocityLimit(t *testing.T) {
	clock := newClock()
	d := New(WithClock(clock.now), WithAxis(2, Axis{Lower: -10, Upper: 10, Friction: 0.005}))
	ctx := context.Background()

	cmd := robot.Command{Position: robot.At(1), VelocityLimit: robot.At(2), MaximumTorque: 0.1}
	_, err := d.SetPosition(ctx, 2, cmd)
	require.NoError(t, err)

	clock.tick(250 * time.Millisecond)
	tel, _ := d.Query(ctx, 2)
	require.InDelta(t, 0.5, tel.Position, 1e-9)

	clock.tick(time.Second)
	tel, _ = d.Query(ctx, 2)
	require.InDelta(t, 1.0, tel.Position, 1e-9)

	clock.tick(time.Second)
	tel, _ = d.Query(ctx, 2)
	require.Zero(t, tel.Velocity)
	require.Zero(t, tel.Torque)
}

func TestTorqueBelowFrictionDoesNotMove(t *testing.T) {
	clock := newClock()
	d := New(WithClock(clock.now), WithAxis(1, Axis{Lower: -1, Upper: 1, Friction: 0.02}))
	ctx := context.Background()

	_, err := d.SetPosition(ctx, 1, velocity(1, 0.01))
	require.NoError(t, err)
	clock.tick(time.Second)
	tel, _ := d.Query(ctx, 1)
	require.Zero(t, tel.Position)
	require.Equal(t, 0.01, tel.Torque)
}

func TestStopHaltsMotion(t *testing.T) {
	clock := newClock()
	d := New(WithClock(clock.now), WithAxis(1, Axis{Lower: -1, Upper: 1, Friction: 0.005}))
	ctx := context.Background()

	_, err := d.SetPosition(ctx, 1, velocity(1, 0.05))
	require.NoError(t, err)
	clock.tick(100 * time.Millisecond)
	require.NoError(t, d.SetStop(ctx, 1))

	clock.tick(time.Second)
	tel, _ := d.Query(ctx, 1)
	require.InDelta(t, 0.1, tel.Position, 1e-9)
	require.Zero(t, tel.Velocity)
	require.Zero(t, tel.Torque)
}

func TestOperatorMovesUndrivenActuator(t *testing.T) {
	clock := newClock()
	d := New(
		WithClock(clock.now),
		WithAxis(1, Axis{Lower: 0, Upper: 5, Friction: 0.005}),
		WithOperator(1, Squeeze(1, 3, 4*time.Second)),
	)
	ctx := context.Background()

	tel, _ := d.Query(ctx, 1)
	require.InDelta(t, 1.0, tel.Position, 1e-9)

	clock.tick(2 * time.Second)
	tel, _ = d.Query(ctx, 1)
	require.InDelta(t, 3.0, tel.Position, 1e-9)

	// A hold command leaves the hand in control but resists it.
	hold := robot.Command{Position: robot.Unconstrained, Velocity: robot.Unconstrained, MaximumTorque: 0.015}
	_, err := d.SetPosition(ctx, 1, hold)
	require.NoError(t, err)
	clock.tick(time.Second)
	tel, _ = d.Query(ctx, 1)
	require.InDelta(t, 2.0, tel.Position, 1e-9)
	require.Equal(t, 0.005, tel.Torque)
}

func TestUnknownActuator(t *testing.T) {
	d := New(WithAxis(1, DefaultAxis()))

	_, err := d.Query(context.Background(), 9)
	require.ErrorIs(t, err, ErrUnknownActuator)
	require.ErrorIs(t, d.SetStop(context.Background(), 9), ErrUnknownActuator)
}
