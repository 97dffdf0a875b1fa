package robot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "proteus.yaml"

// Driver kinds.
const (
	DriverSim     = "sim"
	DriverFeetech = "feetech"
)

// Config holds the gripper configuration. It is read once at startup and
// passed to every component; nothing writes it back.
type Config struct {
	Driver      DriverConfig   `yaml:"driver"`
	Leader      ActuatorConfig `yaml:"leader"`
	Follower    ActuatorConfig `yaml:"follower"`
	Mirror      MirrorConfig   `yaml:"mirror"`
	Monitor     MonitorConfig  `yaml:"monitor"`
	Jog         JogConfig      `yaml:"jog"`
	StopTimeout time.Duration  `yaml:"stop_timeout"`
}

// DriverConfig selects the actuator driver.
type DriverConfig struct {
	Kind     string `yaml:"kind"`
	BaudRate int    `yaml:"baud_rate,omitempty"`
}

// ActuatorConfig holds configuration for a single actuator
type ActuatorConfig struct {
	ID      ID            `yaml:"id"`
	Port    string        `yaml:"port,omitempty"`
	ServoID int           `yaml:"servo_id,omitempty"`
	Homing  HomingProfile `yaml:"homing"`
}

// MirrorConfig holds the teleoperation control law parameters.
type MirrorConfig struct {
	Alpha             float64       `yaml:"alpha"`
	SpanOffset        float64       `yaml:"span_offset"` // follower zero minus leader zero, rotations
	FollowerMaxTorque float64       `yaml:"follower_max_torque"`
	LeaderHoldTorque  float64       `yaml:"leader_hold_torque"`
	Period            time.Duration `yaml:"period"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
}

// MonitorConfig holds the telemetry polling cadence.
type MonitorConfig struct {
	Period     time.Duration `yaml:"period"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// JogConfig holds the manual open/close and move-to parameters.
type JogConfig struct {
	Velocity      float64       `yaml:"velocity"`
	MaxTorque     float64       `yaml:"max_torque"`
	VelocityLimit float64       `yaml:"velocity_limit"`
	KpScale       float64       `yaml:"kp_scale"`
	KdScale       float64       `yaml:"kd_scale"`
	Period        time.Duration `yaml:"period"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
}

// Default returns the configuration observed on the bench gripper.
func Default() Config {
	return Config{
		Driver: DriverConfig{Kind: DriverSim, BaudRate: 1_000_000},
		Leader: ActuatorConfig{
			ID:     1,
			Homing: DefaultLeaderHoming(),
		},
		Follower: ActuatorConfig{
			ID:     2,
			Homing: DefaultFollowerHoming(),
		},
		Mirror: MirrorConfig{
			Alpha:             0.95,
			SpanOffset:        7,
			FollowerMaxTorque: 0.1,
			LeaderHoldTorque:  0.015,
			Period:            time.Millisecond,
			SettleDelay:       20 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			Period:     time.Millisecond,
			RetryDelay: time.Second,
		},
		Jog: JogConfig{
			Velocity:      1.0,
			MaxTorque:     0.05,
			VelocityLimit: 1.0,
			KpScale:       1.0,
			KdScale:       1.0,
			Period:        time.Second / 300,
			SettleDelay:   20 * time.Millisecond,
		},
		StopTimeout: 250 * time.Millisecond,
	}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Keys missing from
// the file keep their Default values.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

// Validate checks every limit and interval.
func (c *Config) Validate() error {
	if c.Driver.Kind != DriverSim && c.Driver.Kind != DriverFeetech {
		return &ValidationError{Field: "driver.kind", Value: c.Driver.Kind, Reason: `must be "sim" or "feetech"`}
	}
	if c.Leader.ID == c.Follower.ID {
		return &ValidationError{Field: "follower.id", Value: c.Follower.ID, Reason: "must differ from leader.id"}
	}
	if err := c.Leader.Homing.Validate("leader.homing"); err != nil {
		return err
	}
	if err := c.Follower.Homing.Validate("follower.homing"); err != nil {
		return err
	}

	m := c.Mirror
	switch {
	case !finite(m.Alpha) || m.Alpha < 0 || m.Alpha > 1:
		return &ValidationError{Field: "mirror.alpha", Value: m.Alpha, Reason: "must be within [0, 1]"}
	case !finite(m.SpanOffset):
		return &ValidationError{Field: "mirror.span_offset", Value: m.SpanOffset, Reason: "must be finite"}
	case !finite(m.FollowerMaxTorque) || m.FollowerMaxTorque <= 0:
		return &ValidationError{Field: "mirror.follower_max_torque", Value: m.FollowerMaxTorque, Reason: "must be positive"}
	case !finite(m.LeaderHoldTorque) || m.LeaderHoldTorque <= 0:
		return &ValidationError{Field: "mirror.leader_hold_torque", Value: m.LeaderHoldTorque, Reason: "must be positive"}
	case m.LeaderHoldTorque >= m.FollowerMaxTorque:
		return &ValidationError{Field: "mirror.leader_hold_torque", Value: m.LeaderHoldTorque, Reason: "must stay below follower_max_torque so the trigger can be moved by hand"}
	case m.Period <= 0:
		return &ValidationError{Field: "mirror.period", Value: m.Period, Reason: "must be positive"}
	case m.SettleDelay < 0:
		return &ValidationError{Field: "mirror.settle_delay", Value: m.SettleDelay, Reason: "must not be negative"}
	}

	switch {
	case c.Monitor.Period <= 0:
		return &ValidationError{Field: "monitor.period", Value: c.Monitor.Period, Reason: "must be positive"}
	case c.Monitor.RetryDelay <= 0:
		return &ValidationError{Field: "monitor.retry_delay", Value: c.Monitor.RetryDelay, Reason: "must be positive"}
	}

	j := c.Jog
	switch {
	case !finite(j.Velocity) || j.Velocity <= 0:
		return &ValidationError{Field: "jog.velocity", Value: j.Velocity, Reason: "must be positive"}
	case !finite(j.MaxTorque) || j.MaxTorque <= 0:
		return &ValidationError{Field: "jog.max_torque", Value: j.MaxTorque, Reason: "must be positive"}
	case !finite(j.VelocityLimit) || j.VelocityLimit <= 0:
		return &ValidationError{Field: "jog.velocity_limit", Value: j.VelocityLimit, Reason: "must be positive"}
	case !finite(j.KpScale) || j.KpScale < 0 || !finite(j.KdScale) || j.KdScale < 0:
		return &ValidationError{Field: "jog.kp_scale", Value: j.KpScale, Reason: "gain scales must not be negative"}
	case j.Period <= 0:
		return &ValidationError{Field: "jog.period", Value: j.Period, Reason: "must be positive"}
	case j.SettleDelay < 0:
		return &ValidationError{Field: "jog.settle_delay", Value: j.SettleDelay, Reason: "must not be negative"}
	}

	if c.StopTimeout <= 0 {
		return &ValidationError{Field: "stop_timeout", Value: c.StopTimeout, Reason: "must be positive"}
	}
	if c.Driver.Kind == DriverFeetech && (c.Leader.Port == "" || c.Follower.Port == "") {
		return &ValidationError{Field: "leader.port", Value: c.Leader.Port, Reason: "feetech driver needs a port per actuator"}
	}
	return nil
}
