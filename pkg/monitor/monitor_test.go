package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/proteus-gripper/proteus/internal/fakedriver"
	"github.com/proteus-gripper/proteus/pkg/metrics"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

var fastConfig = robot.MonitorConfig{Period: time.Millisecond, RetryDelay: time.Millisecond}

func pair(t *testing.T, drv robot.Driver) (leader, follower *robot.Actuator) {
	t.Helper()
	cfg := robot.Default()
	leader, follower, err := robot.NewRegistry(drv).Pair(&cfg)
	require.NoError(t, err)
	return leader, follower
}

func TestMonitorRetriesAfterFailures(t *testing.T) {
	t.Parallel()

	const failures = 3
	errBus := errors.New("bus timeout")

	drv := fakedriver.New()
	drv.OnQuery = func(id robot.ID, n int) (robot.Telemetry, error) {
		if id == 1 && n <= failures {
			return robot.Telemetry{}, errBus
		}
		return robot.Telemetry{Position: float64(id)}, nil
	}
	leader, follower := pair(t, drv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var queriesAtFirstSuccess int
	m := metrics.New(nil)
	mon := New(leader, follower, fastConfig, WithMetrics(m), WithSink(func(Snapshot) {
		if queriesAtFirstSuccess == 0 {
			queriesAtFirstSuccess = drv.Count(fakedriver.OpQuery, 1)
			cancel()
		}
	}))

	err := mon.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, failures+1, queriesAtFirstSuccess)
	require.Equal(t, uint64(failures), mon.Failures())
	require.Equal(t, uint64(1), mon.Polls())
	require.Equal(t, float64(failures), testutil.ToFloat64(m.MonitorFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MonitorPolls), "a poll of both actuators counts once")

	snap, ok := mon.Latest()
	require.True(t, ok)
	require.Equal(t, uint64(1), snap.Seq)
	require.Equal(t, 1.0, snap.Leader.Position)
	require.Equal(t, 2.0, snap.Follower.Position)
	require.Equal(t, 2.0, testutil.ToFloat64(m.Position.WithLabelValues("follower")))
}

func TestMonitorKeepsLastSnapshotOnFailure(t *testing.T) {
	t.Parallel()

	drv := fakedriver.New()
	drv.OnQuery = func(id robot.ID, n int) (robot.Telemetry, error) {
		if n > 1 {
			return robot.Telemetry{}, errors.New("unplugged")
		}
		return robot.Telemetry{Torque: 0.01 * float64(id)}, nil
	}
	leader, follower := pair(t, drv)
	mon := New(leader, follower, fastConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, func() bool { return mon.Failures() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	snap, ok := mon.Latest()
	require.True(t, ok)
	require.Equal(t, uint64(1), snap.Seq)
	require.Equal(t, 0.02, snap.Follower.Torque)

	last, ok := follower.Last()
	require.True(t, ok)
	require.Equal(t, 0.02, last.Torque)

	for _, c := range drv.Calls() {
		require.Equal(t, fakedriver.OpQuery, c.Op, "monitor must not command motion")
	}
}

func TestMonitorDoesNotNeedLease(t *testing.T) {
	t.Parallel()

	drv := fakedriver.New()
	leader, follower := pair(t, drv)
	lease, err := follower.Acquire("mirror")
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithCancel(context.Background())
	mon := New(leader, follower, fastConfig, WithSink(func(Snapshot) { cancel() }))
	require.ErrorIs(t, mon.Run(ctx), context.Canceled)
	require.Equal(t, uint64(1), mon.Polls())
}

func TestUpdatesDropsStaleSnapshots(t *testing.T) {
	t.Parallel()

	mon := New(nil, nil, fastConfig)
	mon.publish(Snapshot{Seq: 1})
	mon.publish(Snapshot{Seq: 2})
	mon.publish(Snapshot{Seq: 3})

	select {
	case s := <-mon.Updates():
		require.Equal(t, uint64(3), s.Seq)
	default:
		t.Fatal("no snapshot published")
	}

	select {
	case s := <-mon.Updates():
		t.Fatalf("unexpected extra snapshot %d", s.Seq)
	default:
	}
}
