package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proteus-gripper/proteus/internal/fakedriver"
	"github.com/proteus-gripper/proteus/pkg/record"
	"github.com/proteus-gripper/proteus/pkg/robot"
	"github.com/proteus-gripper/proteus/pkg/teleop"
)

func TestParseRoles(t *testing.T) {
	roles, err := parseRoles(nil)
	require.NoError(t, err)
	require.Equal(t, robot.AllRoles(), roles)

	roles, err = parseRoles([]string{"gripper"})
	require.NoError(t, err)
	require.Equal(t, []robot.Role{robot.Follower}, roles)

	_, err = parseRoles([]string{"wrist"})
	var verr *robot.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "role", verr.Field)
}

func TestLogWriterDropsWhenFull(t *testing.T) {
	w := make(logWriter, 1)

	n, err := w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	require.Equal(t, "first", <-w)
	require.Empty(t, w)
}

func TestReplayFilter(t *testing.T) {
	c := ReplayCommand{Session: "bench-1", Kinds: []string{"homing", "event"}, Since: time.Minute}
	f := c.filter()
	require.Equal(t, "bench-1", f.SessionID)
	require.Equal(t, []record.Kind{record.KindHoming, record.KindEvent}, f.Kinds)
	require.WithinDuration(t, time.Now().Add(-time.Minute), f.Since, time.Second)
}

func newJogSession(t *testing.T, drv *fakedriver.Driver) *teleop.Session {
	t.Helper()
	cfg := robot.Default()
	cfg.Jog.SettleDelay = 0
	s, err := teleop.NewSession(context.Background(), robot.NewRegistry(drv), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestJogReportsDriveFailure(t *testing.T) {
	errBus := errors.New("bus timeout")
	drv := fakedriver.New()
	drv.OnSetPosition = func(id robot.ID, _ robot.Command, n int) (robot.Telemetry, error) {
		if id == 2 && n == 2 {
			return robot.Telemetry{}, errBus
		}
		return robot.Telemetry{}, nil
	}
	s := newJogSession(t, drv)

	c := JogCommand{For: 5 * time.Second}
	c.Args.Action = "open"
	require.NoError(t, c.start(s))

	began := time.Now()
	require.ErrorIs(t, c.drive(context.Background(), s), errBus)
	require.Less(t, time.Since(began), time.Second, "a failed command ends the jog early")
}

func TestJogHaltsAfterDuration(t *testing.T) {
	drv := fakedriver.New()
	s := newJogSession(t, drv)

	c := JogCommand{For: 20 * time.Millisecond}
	c.Args.Action = "to"
	c.Args.Position = "3.5"
	require.NoError(t, c.start(s))
	require.NoError(t, c.drive(context.Background(), s))

	require.Empty(t, s.Follower().Holder())
	calls := drv.CallsTo(fakedriver.OpSetPosition, 2)
	require.NotEmpty(t, calls)
	require.Equal(t, robot.At(3.5), calls[0].Cmd.Position)
}
