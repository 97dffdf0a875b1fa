// Package teleop mirrors the leader trigger onto the follower gripper and
// runs the manual jog and move-to commands.
package teleop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/filter"
	"github.com/proteus-gripper/proteus/pkg/metrics"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

// MirrorHolder is the lease holder name used by the mirror loop.
const MirrorHolder = "mirror"

// Step is the outcome of one mirror iteration.
type Step struct {
	Raw      float64
	Filtered float64
	Target   float64
	Leader   robot.Telemetry
	Follower robot.Telemetry
	At       time.Time
}

// Leases is the pair of leases held by one mirror run.
type Leases struct {
	Leader   *robot.Lease
	Follower *robot.Lease
}

// Release gives up both leases.
func (l *Leases) Release() {
	l.Leader.Release()
	l.Follower.Release()
}

// Mirror is the leader-to-follower control loop. One Mirror serves every run
// of a session; its filter history carries over between runs.
type Mirror struct {
	leader   *robot.Actuator
	follower *robot.Actuator
	filter   *filter.Exponential
	cfg      robot.MirrorConfig

	stopTimeout time.Duration
	metrics     *metrics.Metrics
	observer    func(Step)
	logLimit    *rate.Limiter

	stopping   atomic.Bool
	iterations atomic.Uint64
	failures   atomic.Uint64
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithMirrorMetrics reports iterations and failures to m.
func WithMirrorMetrics(m *metrics.Metrics) MirrorOption {
	return func(mi *Mirror) { mi.metrics = m }
}

// WithStepObserver calls fn after every completed iteration on the loop goroutine.
func WithStepObserver(fn func(Step)) MirrorOption {
	return func(mi *Mirror) { mi.observer = fn }
}

// WithMirrorStopTimeout bounds the shutdown stop commands.
func WithMirrorStopTimeout(d time.Duration) MirrorOption {
	return func(mi *Mirror) { mi.stopTimeout = d }
}

// NewMirror creates a mirror loop between leader and follower.
func NewMirror(leader, follower *robot.Actuator, f *filter.Exponential, cfg robot.MirrorConfig, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		leader:      leader,
		follower:    follower,
		filter:      f,
		cfg:         cfg,
		stopTimeout: 250 * time.Millisecond,
		// At 1 kHz a dead bus would otherwise log a thousand lines a second.
		logLimit: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Iterations returns the number of completed iterations.
func (m *Mirror) Iterations() uint64 {
	return m.iterations.Load()
}

// Failures returns the number of failed iterations.
func (m *Mirror) Failures() uint64 {
	return m.failures.Load()
}

// Acquire takes both leases for a new run and clears any earlier stop request.
// It fails with a *robot.SafetyViolation when either actuator is held.
func (m *Mirror) Acquire() (*Leases, error) {
	leader, err := m.leader.Acquire(MirrorHolder)
	if err != nil {
		m.metrics.SafetyViolation(MirrorHolder)
		return nil, err
	}
	follower, err := m.follower.Acquire(MirrorHolder)
	if err != nil {
		leader.Release()
		m.metrics.SafetyViolation(MirrorHolder)
		return nil, err
	}
	m.stopping.Store(false)
	return &Leases{Leader: leader, Follower: follower}, nil
}

// Stop asks the running loop to exit after its current iteration.
func (m *Mirror) Stop() {
	m.stopping.Store(true)
}

// Run acquires the leases and drives the loop until Stop or ctx ends.
func (m *Mirror) Run(ctx context.Context) error {
	leases, err := m.Acquire()
	if err != nil {
		return err
	}
	return m.Drive(ctx, leases)
}

// Drive runs the loop on leases from Acquire. Whatever ends it, both
// actuators get exactly one stop and the leases are released.
func (m *Mirror) Drive(ctx context.Context, leases *Leases) (err error) {
	ctx = logger.WithName(ctx, "mirror")
	m.metrics.SetMirrorRunning(true)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mirror loop panic: %v", r)
			logger.ErrorKV(ctx, "Mirror loop crashed", "error", err)
		}
		if stopErr := robot.StopAll(ctx, m.stopTimeout, m.leader, m.follower); stopErr != nil {
			logger.ErrorKV(ctx, "Stopping actuators failed", "error", stopErr)
		}
		leases.Release()
		m.metrics.SetMirrorRunning(false)
		logger.InfoKV(ctx, "Mirror stopped", "iterations", m.iterations.Load(), "failures", m.failures.Load())
	}()

	if err := m.startup(ctx, leases); err != nil {
		return err
	}
	logger.InfoKV(ctx, "Mirror started", "period", m.cfg.Period, "alpha", m.filter.Alpha())

	for !m.stopping.Load() {
		m.step(ctx, leases)
		if err := robot.Sleep(ctx, m.cfg.Period); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) startup(ctx context.Context, leases *Leases) error {
	if err := leases.Follower.Stop(ctx); err != nil {
		return fmt.Errorf("stop follower: %w", err)
	}
	if err := robot.Sleep(ctx, m.cfg.SettleDelay); err != nil {
		return err
	}

	if m.filter.Seeded() {
		return nil
	}
	t, err := m.leader.Query(ctx)
	if err != nil {
		// The first successful iteration seeds the filter instead.
		logger.WarnKV(ctx, "Seeding filter from leader failed", "error", err)
		return nil
	}
	m.filter.Seed(t.Position)
	logger.Debugf(ctx, "Filter seeded at %.4f", t.Position)
	return nil
}

func (m *Mirror) step(ctx context.Context, leases *Leases) {
	hold := robot.Command{
		Position:      robot.Unconstrained,
		Velocity:      robot.Unconstrained,
		MaximumTorque: m.cfg.LeaderHoldTorque,
	}
	lt, err := leases.Leader.SetPosition(ctx, hold)
	if err != nil {
		m.fail(ctx, robot.Leader, err)
		return
	}

	filtered := m.filter.Update(lt.Position)
	target := m.cfg.SpanOffset - filtered

	ft, err := leases.Follower.SetPosition(ctx, robot.Command{
		Position:      robot.At(target),
		Velocity:      robot.At(0),
		MaximumTorque: m.cfg.FollowerMaxTorque,
	})
	if err != nil {
		m.fail(ctx, robot.Follower, err)
		return
	}

	m.iterations.Add(1)
	m.metrics.MirrorIteration()
	if m.observer != nil {
		m.observer(Step{
			Raw:      lt.Position,
			Filtered: filtered,
			Target:   target,
			Leader:   lt,
			Follower: ft,
			At:       time.Now(),
		})
	}
}

func (m *Mirror) fail(ctx context.Context, role robot.Role, err error) {
	if ctx.Err() != nil {
		return
	}
	n := m.failures.Add(1)
	m.metrics.MirrorFailure(role)
	if m.logLimit.Allow() {
		logger.WarnKV(ctx, "Mirror iteration failed", "role", role, "error", err, "failures", n)
	}
}
