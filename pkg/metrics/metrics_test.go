package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.MirrorIteration()
		m.MirrorFailure(robot.Leader)
		m.SetMirrorRunning(true)
		m.MonitorPoll(robot.Telemetry{}, robot.Telemetry{})
		m.MonitorFailure()
		m.HomingFinished(robot.Leader, "succeeded")
		m.SafetyViolation("mirror")
	})
}

func TestCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.MirrorIteration()
	m.MirrorIteration()
	m.MirrorFailure(robot.Follower)
	m.SetMirrorRunning(true)
	m.MonitorPoll(robot.Telemetry{Position: 1.5, Torque: -0.01}, robot.Telemetry{Position: 5.5})
	m.HomingFinished(robot.Follower, "failed")

	require.Equal(t, 2.0, testutil.ToFloat64(m.MirrorIterations))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MirrorFailures.WithLabelValues("follower")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MirrorRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MonitorPolls), "one poll covers both actuators")
	require.Equal(t, 1.5, testutil.ToFloat64(m.Position.WithLabelValues("leader")))
	require.Equal(t, 5.5, testutil.ToFloat64(m.Position.WithLabelValues("follower")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HomingRuns.WithLabelValues("follower", "failed")))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Positive(t, count)
}
