// Package record writes gripper telemetry, mirror steps and homing results to
// a CBOR file and reads them back for replay.
package record

import (
	"time"

	"github.com/proteus-gripper/proteus/pkg/homing"
	"github.com/proteus-gripper/proteus/pkg/monitor"
	"github.com/proteus-gripper/proteus/pkg/robot"
	"github.com/proteus-gripper/proteus/pkg/teleop"
)

// Kind classifies an entry.
type Kind uint8

const (
	KindSample Kind = iota
	KindStep
	KindHoming
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindSample:
		return "sample"
	case KindStep:
		return "step"
	case KindHoming:
		return "homing"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// AllKinds returns every entry kind.
func AllKinds() []Kind {
	return []Kind{KindSample, KindStep, KindHoming, KindEvent}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds() {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Entry is one recorded item. CBOR encoding uses integer keys for compactness.
// Exactly one payload field is set, matching Kind.
type Entry struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Kind      Kind      `cbor:"3,keyasint"`

	Sample *Sample       `cbor:"10,keyasint,omitempty"`
	Step   *Step         `cbor:"11,keyasint,omitempty"`
	Homing *HomingResult `cbor:"12,keyasint,omitempty"`
	Event  *Event        `cbor:"13,keyasint,omitempty"`
}

// Telemetry is a recorded actuator sample.
type Telemetry struct {
	Position float64 `cbor:"1,keyasint"`
	Velocity float64 `cbor:"2,keyasint"`
	Torque   float64 `cbor:"3,keyasint"`
}

func fromTelemetry(t robot.Telemetry) Telemetry {
	return Telemetry{Position: t.Position, Velocity: t.Velocity, Torque: t.Torque}
}

// Sample is a monitor snapshot.
type Sample struct {
	Seq      uint64    `cbor:"1,keyasint"`
	Leader   Telemetry `cbor:"2,keyasint"`
	Follower Telemetry `cbor:"3,keyasint"`
}

// Step is one mirror iteration.
type Step struct {
	Raw      float64 `cbor:"1,keyasint"`
	Filtered float64 `cbor:"2,keyasint"`
	Target   float64 `cbor:"3,keyasint"`
	Follower float64 `cbor:"4,keyasint"`
}

// HomingResult is a finished homing run.
type HomingResult struct {
	Role      string  `cbor:"1,keyasint"`
	State     string  `cbor:"2,keyasint"`
	Polls     int     `cbor:"3,keyasint"`
	Torque    float64 `cbor:"4,keyasint"`
	Reference float64 `cbor:"5,keyasint"`
	Error     string  `cbor:"6,keyasint,omitempty"`
}

// Event is a session transition.
type Event struct {
	Kind   string `cbor:"1,keyasint"`
	Role   string `cbor:"2,keyasint,omitempty"`
	Homing string `cbor:"3,keyasint,omitempty"`
	Error  string `cbor:"4,keyasint,omitempty"`
}

func sampleEntry(s monitor.Snapshot) Entry {
	return Entry{
		Timestamp: s.At,
		Kind:      KindSample,
		Sample: &Sample{
			Seq:      s.Seq,
			Leader:   fromTelemetry(s.Leader),
			Follower: fromTelemetry(s.Follower),
		},
	}
}

func stepEntry(s teleop.Step) Entry {
	return Entry{
		Timestamp: s.At,
		Kind:      KindStep,
		Step: &Step{
			Raw:      s.Raw,
			Filtered: s.Filtered,
			Target:   s.Target,
			Follower: s.Follower.Position,
		},
	}
}

func homingEntry(r homing.Result) Entry {
	h := &HomingResult{
		Role:      r.Role.String(),
		State:     r.State.String(),
		Polls:     r.Polls,
		Torque:    r.Torque,
		Reference: r.Reference,
	}
	if r.Err != nil {
		h.Error = r.Err.Error()
	}
	return Entry{Timestamp: r.Finished, Kind: KindHoming, Homing: h}
}

func eventEntry(e teleop.Event) Entry {
	ev := &Event{Kind: e.Kind.String()}
	if e.Kind == teleop.HomingChanged {
		ev.Role = e.Role.String()
		ev.Homing = e.Homing.String()
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	return Entry{Timestamp: e.At, Kind: KindEvent, Event: ev}
}
