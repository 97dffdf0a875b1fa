package servobus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestObserveDerivesVelocity(t *testing.T) {
	var j joint

	tel := j.observe(2048, t0)
	require.Equal(t, 0.5, tel.Position)
	require.Zero(t, tel.Velocity)
	require.Zero(t, tel.Torque)

	tel = j.observe(4096, t0.Add(500*time.Millisecond))
	require.Equal(t, 1.0, tel.Position)
	require.InDelta(t, 1.0, tel.Velocity, 1e-9)
	require.Equal(t, t0.Add(500*time.Millisecond), tel.SampledAt)
}

func TestVelocityLeadSaturatesWhenBlocked(t *testing.T) {
	var j joint
	j.observe(0, t0)

	cmd := robot.Command{Velocity: robot.At(1), MaximumTorque: 0.05}
	goal, drive := j.plan(cmd, t0)
	require.True(t, drive)
	require.Equal(t, 0, goal, "first plan holds at the measured position")

	goal, _ = j.plan(cmd, t0.Add(time.Second))
	require.Equal(t, 410, goal, "lead is clamped to MaxLead")

	tel := j.observe(0, t0.Add(time.Second))
	require.InDelta(t, 0.05, tel.Torque, 1e-9)

	goal, _ = j.plan(robot.Command{Velocity: robot.At(-1), MaximumTorque: 0.05}, t0.Add(2*time.Second))
	require.Equal(t, -410, goal)
	tel = j.observe(0, t0.Add(2*time.Second))
	require.InDelta(t, -0.05, tel.Torque, 1e-9)
}

func TestPositionSlewsAtVelocityLimit(t *testing.T) {
	var j joint
	j.observe(0, t0)

	cmd := robot.Command{Position: robot.At(1), VelocityLimit: robot.At(0.5), MaximumTorque: 0.1}
	goal, drive := j.plan(cmd, t0)
	require.True(t, drive)
	require.Equal(t, 0, goal)

	goal, _ = j.plan(cmd, t0.Add(time.Second))
	require.Equal(t, 2048, goal)

	goal, _ = j.plan(robot.Command{Position: robot.At(1), MaximumTorque: 0.1}, t0.Add(2*time.Second))
	require.Equal(t, 4096, goal)
}

func TestHoldReleasesServo(t *testing.T) {
	var j joint
	j.observe(100, t0)
	j.plan(robot.Command{Velocity: robot.At(1), MaximumTorque: 0.1}, t0)

	_, drive := j.plan(robot.Command{MaximumTorque: 0.015}, t0.Add(time.Millisecond))
	require.False(t, drive)
	require.Zero(t, j.observe(100, t0.Add(2*time.Millisecond)).Torque)
}

func TestReferenceShiftsReportedFrame(t *testing.T) {
	var j joint
	j.observe(1024, t0)
	j.reference(7)

	tel := j.observe(1024, t0.Add(time.Millisecond))
	require.InDelta(t, 7.0, tel.Position, 1e-9)

	goal, drive := j.plan(robot.Command{Position: robot.At(7), MaximumTorque: 0.1}, t0.Add(time.Millisecond))
	require.True(t, drive)
	require.Equal(t, 1024, goal)

	j.release()
	require.Zero(t, j.observe(0, t0.Add(2*time.Millisecond)).Torque)
}
