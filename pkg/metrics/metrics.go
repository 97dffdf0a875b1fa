// Package metrics holds the Prometheus collectors shared by the control loops.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

const namespace = "proteus"

// Metrics groups every collector the loops report to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	MirrorIterations prometheus.Counter
	MirrorFailures   *prometheus.CounterVec // by actuator role
	MirrorRunning    prometheus.Gauge
	MonitorPolls     prometheus.Counter
	MonitorFailures  prometheus.Counter
	HomingRuns       *prometheus.CounterVec // by role and outcome
	SafetyViolations *prometheus.CounterVec // by requester
	Position         *prometheus.GaugeVec   // by role
	Torque           *prometheus.GaugeVec   // by role
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MirrorIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "iterations_total",
			Help:      "Completed mirror control iterations.",
		}),
		MirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "failures_total",
			Help:      "Failed mirror queries or commands.",
		}, []string{"role"}),
		MirrorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "running",
			Help:      "1 while the mirror loop is active.",
		}),
		MonitorPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "polls_total",
			Help:      "Successful monitor polls.",
		}),
		MonitorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "failures_total",
			Help:      "Failed monitor polls.",
		}),
		HomingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "homing",
			Name:      "runs_total",
			Help:      "Finished homing procedures.",
		}, []string{"role", "outcome"}),
		SafetyViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_violations_total",
			Help:      "Rejected attempts to command an actuator held by another loop.",
		}, []string{"requester"}),
		Position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_rotations",
			Help:      "Last monitored actuator position.",
		}, []string{"role"}),
		Torque: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "torque_newton_meters",
			Help:      "Last monitored actuator torque.",
		}, []string{"role"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MirrorIterations,
			m.MirrorFailures,
			m.MirrorRunning,
			m.MonitorPolls,
			m.MonitorFailures,
			m.HomingRuns,
			m.SafetyViolations,
			m.Position,
			m.Torque,
		)
	}
	return m
}

// MirrorIteration counts one completed mirror iteration.
func (m *Metrics) MirrorIteration() {
	if m == nil {
		return
	}
	m.MirrorIterations.Inc()
}

// MirrorFailure counts a failed mirror round trip on role.
func (m *Metrics) MirrorFailure(role robot.Role) {
	if m == nil {
		return
	}
	m.MirrorFailures.WithLabelValues(role.String()).Inc()
}

// SetMirrorRunning records whether the mirror loop is active.
func (m *Metrics) SetMirrorRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.MirrorRunning.Set(1)
	} else {
		m.MirrorRunning.Set(0)
	}
}

// MonitorPoll records one successful poll of both actuators.
func (m *Metrics) MonitorPoll(leader, follower robot.Telemetry) {
	if m == nil {
		return
	}
	m.MonitorPolls.Inc()
	for role, t := range map[robot.Role]robot.Telemetry{robot.Leader: leader, robot.Follower: follower} {
		m.Position.WithLabelValues(role.String()).Set(t.Position)
		m.Torque.WithLabelValues(role.String()).Set(t.Torque)
	}
}

// MonitorFailure counts a failed poll.
func (m *Metrics) MonitorFailure() {
	if m == nil {
		return
	}
	m.MonitorFailures.Inc()
}

// HomingFinished counts a homing run by outcome.
func (m *Metrics) HomingFinished(role robot.Role, outcome string) {
	if m == nil {
		return
	}
	m.HomingRuns.WithLabelValues(role.String(), outcome).Inc()
}

// SafetyViolation counts a rejected lease request.
func (m *Metrics) SafetyViolation(requester string) {
	if m == nil {
		return
	}
	m.SafetyViolations.WithLabelValues(requester).Inc()
}
