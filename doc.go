// Package proteus controls a teleoperated gripper built from two actuators:
// a trigger the operator squeezes and a gripper that mirrors it.
//
// # Installation
//
//	go install github.com/proteus-gripper/proteus/cmd/proteus@latest
//
// # Usage
//
// Find the servos and print a configuration for them:
//
//	proteus scan
//
// Home both actuators against their hard stops, then mirror:
//
//	proteus home
//	proteus teleoperate
//
// Every command accepts --sim to run against the simulated gripper.
//
// # Packages
//
//   - cmd/proteus: CLI with scan, home, jog, teleoperate and replay commands
//   - pkg/robot: actuator handles, leases, driver interface and configuration
//   - pkg/filter: exponential smoothing of the trigger position
//   - pkg/teleop: mirror loop, jog and move-to, and the session that owns them
//   - pkg/homing: torque-triggered homing
//   - pkg/monitor: telemetry polling
//   - pkg/metrics: Prometheus instrumentation
//   - pkg/record: CBOR telemetry recording and replay
//   - pkg/sim: simulated gripper driver
//   - pkg/servobus: Feetech STS serial bus driver
package proteus
