// Package monitor polls both actuators for telemetry and publishes the
// latest snapshot. It never commands motion.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/metrics"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

// Snapshot is one successful poll of both actuators.
type Snapshot struct {
	Seq      uint64
	Leader   robot.Telemetry
	Follower robot.Telemetry
	At       time.Time
}

// Sink receives every published snapshot on the monitor goroutine.
type Sink func(Snapshot)

// Option configures a Monitor.
type Option func(*Monitor)

// WithMetrics reports polls and failures to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mon *Monitor) { mon.metrics = m }
}

// WithSink adds a snapshot consumer, for example a recorder.
func WithSink(s Sink) Option {
	return func(mon *Monitor) { mon.sinks = append(mon.sinks, s) }
}

// Monitor is the telemetry loop.
type Monitor struct {
	leader   *robot.Actuator
	follower *robot.Actuator
	cfg      robot.MonitorConfig
	metrics  *metrics.Metrics
	sinks    []Sink

	updates chan Snapshot

	mu     sync.RWMutex
	latest Snapshot
	valid  bool

	polls    atomic.Uint64
	failures atomic.Uint64
}

// New creates a monitor over the leader and follower handles.
func New(leader, follower *robot.Actuator, cfg robot.MonitorConfig, opts ...Option) *Monitor {
	m := &Monitor{
		leader:   leader,
		follower: follower,
		cfg:      cfg,
		updates:  make(chan Snapshot, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Updates returns a channel holding the newest snapshot. Older snapshots are
// dropped when the reader falls behind.
func (m *Monitor) Updates() <-chan Snapshot {
	return m.updates
}

// Latest returns the last published snapshot.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.valid
}

// Polls returns the number of successful polls.
func (m *Monitor) Polls() uint64 {
	return m.polls.Load()
}

// Failures returns the number of failed polls.
func (m *Monitor) Failures() uint64 {
	return m.failures.Load()
}

// Run polls until ctx ends. A failed poll is logged and counted, the previous
// snapshot stays published, and the next attempt waits RetryDelay.
func (m *Monitor) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "monitor")
	logger.Infof(ctx, "Monitor started, polling every %s", m.cfg.Period)

	for {
		snap, err := m.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n := m.failures.Add(1)
			m.metrics.MonitorFailure()
			logger.WarnKV(ctx, "Telemetry poll failed", "error", err, "failures", n, "retry_in", m.cfg.RetryDelay)
			if err := robot.Sleep(ctx, m.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		}

		m.publish(snap)
		if err := robot.Sleep(ctx, m.cfg.Period); err != nil {
			return err
		}
	}
}

func (m *Monitor) poll(ctx context.Context) (Snapshot, error) {
	leader, err := m.leader.Query(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	follower, err := m.follower.Query(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	m.metrics.MonitorPoll(leader, follower)
	return Snapshot{
		Seq:      m.polls.Add(1),
		Leader:   leader,
		Follower: follower,
		At:       time.Now(),
	}, nil
}

func (m *Monitor) publish(s Snapshot) {
	m.mu.Lock()
	m.latest = s
	m.valid = true
	m.mu.Unlock()

	for _, sink := range m.sinks {
		sink(s)
	}

	select {
	case m.updates <- s:
	default:
		// Replace the stale snapshot with the new one.
		select {
		case <-m.updates:
		default:
		}
		select {
		case m.updates <- s:
		default:
		}
	}
}
