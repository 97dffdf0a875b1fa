package robot_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/proteus-gripper/proteus/internal/fakedriver"
	"github.com/proteus-gripper/proteus/internal/mocks"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

func TestRegistryCachesOneHandlePerID(t *testing.T) {
	t.Parallel()

	reg := robot.NewRegistry(fakedriver.New())

	a, err := reg.Actuator(1, robot.Leader)
	require.NoError(t, err)
	b, err := reg.Actuator(1, robot.Leader)
	require.NoError(t, err)
	require.Same(t, a, b)

	_, err = reg.Actuator(1, robot.Follower)
	require.ErrorIs(t, err, robot.ErrRoleMismatch)

	f, err := reg.Actuator(2, robot.Follower)
	require.NoError(t, err)
	require.Equal(t, []*robot.Actuator{a, f}, reg.Actuators())
}

func TestQueryKeepsLastKnownGood(t *testing.T) {
	t.Parallel()

	drv := fakedriver.New()
	drv.OnQuery = func(_ robot.ID, n int) (robot.Telemetry, error) {
		if n == 2 {
			return robot.Telemetry{}, errors.New("bus timeout")
		}
		return robot.Telemetry{Position: float64(n)}, nil
	}

	a, err := robot.NewRegistry(drv).Actuator(1, robot.Leader)
	require.NoError(t, err)

	_, ok := a.Last()
	require.False(t, ok)

	got, err := a.Query(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1.0, got.Position)
	require.False(t, got.SampledAt.IsZero())

	_, err = a.Query(context.Background())
	var terr *robot.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, robot.ID(1), terr.Actuator)
	require.Equal(t, "query", terr.Op)

	last, ok := a.Last()
	require.True(t, ok)
	require.Equal(t, 1.0, last.Position)
}

func TestLeaseIsExclusive(t *testing.T) {
	t.Parallel()

	a, err := robot.NewRegistry(fakedriver.New()).Actuator(2, robot.Follower)
	require.NoError(t, err)

	lease, err := a.Acquire("mirror")
	require.NoError(t, err)
	require.Equal(t, "mirror", a.Holder())

	_, err = a.Acquire("homing")
	var sv *robot.SafetyViolation
	require.ErrorAs(t, err, &sv)
	require.ErrorIs(t, err, robot.ErrSafetyViolation)
	require.Equal(t, "mirror", sv.Holder)
	require.Equal(t, "homing", sv.Requester)

	lease.Release()
	lease.Release()
	require.Empty(t, a.Holder())

	_, err = lease.SetPosition(context.Background(), robot.Command{Position: robot.At(1), MaximumTorque: 0.1})
	require.ErrorIs(t, err, robot.ErrLeaseReleased)
	require.ErrorIs(t, lease.SetReference(context.Background(), 0), robot.ErrLeaseReleased)

	next, err := a.Acquire("homing")
	require.NoError(t, err)
	next.Release()
}

func TestStaleReleaseDoesNotFreeNewHolder(t *testing.T) {
	t.Parallel()

	a, err := robot.NewRegistry(fakedriver.New()).Actuator(2, robot.Follower)
	require.NoError(t, err)

	first, err := a.Acquire("jog")
	require.NoError(t, err)
	first.Release()

	second, err := a.Acquire("mirror")
	require.NoError(t, err)
	first.Release()
	require.Equal(t, "mirror", a.Holder())
	second.Release()
}

func TestLeaseRejectsInvalidCommand(t *testing.T) {
	t.Parallel()

	drv := fakedriver.New()
	a, err := robot.NewRegistry(drv).Actuator(2, robot.Follower)
	require.NoError(t, err)
	lease, err := a.Acquire("test")
	require.NoError(t, err)
	defer lease.Release()

	cases := []robot.Command{
		{Position: robot.At(1)},
		{Position: robot.At(math.NaN()), MaximumTorque: 0.1},
		{Velocity: robot.At(math.Inf(1)), MaximumTorque: 0.1},
		{Position: robot.At(1), MaximumTorque: math.NaN()},
	}
	for _, cmd := range cases {
		_, err := lease.SetPosition(context.Background(), cmd)
		var verr *robot.ValidationError
		require.ErrorAs(t, err, &verr, cmd.String())
	}
	require.Zero(t, drv.Count(fakedriver.OpSetPosition, 2))
}

func TestLeaseWrapsDriverErrors(t *testing.T) {
	t.Parallel()

	drv := mocks.NewDriver(t)
	boom := errors.New("frame lost")
	cmd := robot.Command{Velocity: robot.At(0.5), MaximumTorque: 0.05}
	sample := robot.Telemetry{Position: 3, SampledAt: time.Unix(10, 0)}

	drv.On("SetPosition", mock.Anything, robot.ID(2), cmd).Return(sample, nil).Once()
	drv.On("SetAbsoluteReference", mock.Anything, robot.ID(2), 7.0).Return(boom).Once()
	drv.On("SetStop", mock.Anything, robot.ID(2)).Return(boom).Once()

	a, err := robot.NewRegistry(drv).Actuator(2, robot.Follower)
	require.NoError(t, err)
	lease, err := a.Acquire("homing")
	require.NoError(t, err)
	defer lease.Release()

	got, err := lease.SetPosition(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, sample, got)

	last, ok := a.Last()
	require.True(t, ok)
	require.Equal(t, sample, last)

	err = lease.SetReference(context.Background(), 7)
	require.ErrorIs(t, err, boom)

	var terr *robot.TransportError
	require.ErrorAs(t, lease.Stop(context.Background()), &terr)
	require.Equal(t, "stop", terr.Op)
}

func TestAxis(t *testing.T) {
	t.Parallel()

	v, ok := robot.Unconstrained.Value()
	require.False(t, ok)
	require.Zero(t, v)
	require.Equal(t, 4.0, robot.Unconstrained.Or(4))
	require.Equal(t, "free", robot.Unconstrained.String())

	v, ok = robot.At(0).Value()
	require.True(t, ok)
	require.Zero(t, v)
	require.Equal(t, 0.0, robot.At(0).Or(4))
}
