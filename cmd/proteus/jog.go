package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/robot"
	"github.com/proteus-gripper/proteus/pkg/teleop"
)

type JogCommand struct {
	For  time.Duration `long:"for" default:"1s" description:"How long to drive before halting"`
	Args struct {
		Action   string `positional-arg-name:"action" required:"yes" description:"open, close or to"`
		Position string `positional-arg-name:"position" description:"Target position in rotations for 'to'"`
	} `positional-args:"yes"`
}

func (c *JogCommand) start(s *teleop.Session) error {
	switch c.Args.Action {
	case "open":
		return s.Jog(teleop.Open)
	case "close":
		return s.Jog(teleop.Close)
	case "to":
		pos, err := strconv.ParseFloat(c.Args.Position, 64)
		if err != nil {
			return &robot.ValidationError{Field: "position", Value: c.Args.Position, Reason: "must be a number"}
		}
		return s.MoveTo(pos)
	default:
		return &robot.ValidationError{Field: "action", Value: c.Args.Action, Reason: "must be open, close or to"}
	}
}

// drive lets the command run for c.For, or until it fails or ctx ends, and
// returns the error the command ended with.
func (c *JogCommand) drive(ctx context.Context, s *teleop.Session) error {
	runCtx, cancel := context.WithTimeout(ctx, c.For)
	err := s.WaitMotion(runCtx)
	cancel()
	if err == nil || !errors.Is(err, runCtx.Err()) {
		// The command ended on its own.
		return err
	}
	if ctx.Err() != nil {
		logger.Info(ctx, "interrupted")
	}

	s.Halt()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	return s.WaitMotion(stopCtx)
}

func (c *JogCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithName(ctx, "jog")

	r, err := openRig(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := c.start(r.session); err != nil {
		return err
	}
	if err := c.drive(ctx, r.session); err != nil {
		return fmt.Errorf("drive gripper: %w", err)
	}

	t, err := r.session.Follower().Query(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("query gripper: %w", err)
	}
	fmt.Printf("gripper at %.3f rot, torque %.4f Nm\n", t.Position, t.Torque)
	return nil
}
