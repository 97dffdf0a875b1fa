package teleop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

// MotionHolder is the lease holder name used by jog and move-to commands.
const MotionHolder = "motion"

// Direction is a jog direction of the gripper.
type Direction int

const (
	Open Direction = iota
	Close
)

func (d Direction) String() string {
	if d == Close {
		return "close"
	}
	return "open"
}

// sign converts the direction to the sign of the jog velocity.
func (d Direction) sign() float64 {
	if d == Close {
		return -1
	}
	return 1
}

// JogCommand is the velocity-mode command that opens or closes the gripper.
func JogCommand(cfg robot.JogConfig, dir Direction) robot.Command {
	return robot.Command{
		Position:      robot.Unconstrained,
		Velocity:      robot.At(dir.sign() * cfg.Velocity),
		MaximumTorque: cfg.MaxTorque,
	}
}

// MoveCommand is the position-mode command that drives the gripper to position.
func MoveCommand(cfg robot.JogConfig, position float64) robot.Command {
	return robot.Command{
		Position:      robot.At(position),
		Velocity:      robot.Unconstrained,
		VelocityLimit: robot.At(cfg.VelocityLimit),
		MaximumTorque: cfg.MaxTorque,
		KpScale:       robot.At(cfg.KpScale),
		KdScale:       robot.At(cfg.KdScale),
	}
}

// Motion repeats one command on the follower until halted.
type Motion struct {
	follower    *robot.Actuator
	cfg         robot.JogConfig
	stopTimeout time.Duration

	halted atomic.Bool
	sent   atomic.Uint64
}

// NewMotion creates a command loop for the follower.
func NewMotion(follower *robot.Actuator, cfg robot.JogConfig, stopTimeout time.Duration) *Motion {
	return &Motion{follower: follower, cfg: cfg, stopTimeout: stopTimeout}
}

// Acquire takes the follower lease for a new command and clears any earlier halt.
func (m *Motion) Acquire() (*robot.Lease, error) {
	lease, err := m.follower.Acquire(MotionHolder)
	if err != nil {
		return nil, err
	}
	m.halted.Store(false)
	return lease, nil
}

// Halt asks the running command to exit.
func (m *Motion) Halt() {
	m.halted.Store(true)
}

// Sent returns the number of commands sent since the Motion was created.
func (m *Motion) Sent() uint64 {
	return m.sent.Load()
}

// Drive stops the follower, waits SettleDelay, then sends cmd every Period
// until Halt or ctx ends. The follower is stopped and the lease released on exit.
func (m *Motion) Drive(ctx context.Context, lease *robot.Lease, cmd robot.Command) (err error) {
	ctx = logger.WithKV(logger.WithName(ctx, "motion"), "command", cmd.String())

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("motion panic: %v", r)
		}
		if stopErr := robot.StopAll(ctx, m.stopTimeout, m.follower); stopErr != nil {
			logger.ErrorKV(ctx, "Stopping follower failed", "error", stopErr)
		}
		lease.Release()
		if err != nil {
			logger.WarnKV(ctx, "Motion ended", "error", err)
		} else {
			logger.Info(ctx, "Motion ended")
		}
	}()

	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := lease.Stop(ctx); err != nil {
		return err
	}
	if err := robot.Sleep(ctx, m.cfg.SettleDelay); err != nil {
		return err
	}

	logger.Info(ctx, "Motion started")
	for !m.halted.Load() {
		if _, err := lease.SetPosition(ctx, cmd); err != nil {
			return err
		}
		m.sent.Add(1)
		if err := robot.Sleep(ctx, m.cfg.Period); err != nil {
			return err
		}
	}
	return nil
}
