// Package fakedriver provides a scripted robot.Driver that records every call.
package fakedriver

import (
	"context"
	"sync"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

// Driver operations as recorded in Call.Op.
const (
	OpQuery       = "query"
	OpSetPosition = "set_position"
	OpStop        = "stop"
	OpReference   = "reference"
)

// Call is one recorded driver call.
type Call struct {
	Op    string
	ID    robot.ID
	Cmd   robot.Command
	Value float64
}

// Driver answers from per-actuator telemetry unless a hook overrides it.
// Hooks receive the 1-based count of that operation on that actuator.
type Driver struct {
	OnQuery       func(id robot.ID, n int) (robot.Telemetry, error)
	OnSetPosition func(id robot.ID, cmd robot.Command, n int) (robot.Telemetry, error)
	OnStop        func(id robot.ID, n int) error
	OnReference   func(id robot.ID, value float64, n int) error

	mu     sync.Mutex
	calls  []Call
	counts map[string]int
	state  map[robot.ID]robot.Telemetry
}

// New returns an empty driver.
func New() *Driver {
	return &Driver{
		counts: make(map[string]int),
		state:  make(map[robot.ID]robot.Telemetry),
	}
}

// Set stores the telemetry returned for id when no hook is installed.
func (d *Driver) Set(id robot.ID, t robot.Telemetry) {
	d.mu.Lock()
	d.state[id] = t
	d.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Count returns how many times op was called on id.
func (d *Driver) Count(op string, id robot.ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[key(op, id)]
}

// CallsTo returns the recorded calls of op on id.
func (d *Driver) CallsTo(op string, id robot.ID) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.calls {
		if c.Op == op && c.ID == id {
			out = append(out, c)
		}
	}
	return out
}

func (d *Driver) record(c Call) (int, robot.Telemetry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	k := key(c.Op, c.ID)
	d.counts[k]++
	return d.counts[k], d.state[c.ID]
}

func (d *Driver) Query(ctx context.Context, id robot.ID) (robot.Telemetry, error) {
	n, t := d.record(Call{Op: OpQuery, ID: id})
	if err := ctx.Err(); err != nil {
		return robot.Telemetry{}, err
	}
	if d.OnQuery != nil {
		return d.OnQuery(id, n)
	}
	return t, nil
}

func (d *Driver) SetPosition(ctx context.Context, id robot.ID, cmd robot.Command) (robot.Telemetry, error) {
	n, t := d.record(Call{Op: OpSetPosition, ID: id, Cmd: cmd})
	if err := ctx.Err(); err != nil {
		return robot.Telemetry{}, err
	}
	if d.OnSetPosition != nil {
		return d.OnSetPosition(id, cmd, n)
	}
	return t, nil
}

func (d *Driver) SetStop(_ context.Context, id robot.ID) error {
	n, _ := d.record(Call{Op: OpStop, ID: id})
	if d.OnStop != nil {
		return d.OnStop(id, n)
	}
	return nil
}

func (d *Driver) SetAbsoluteReference(ctx context.Context, id robot.ID, value float64) error {
	n, _ := d.record(Call{Op: OpReference, ID: id, Value: value})
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.OnReference != nil {
		return d.OnReference(id, value, n)
	}
	return nil
}

func key(op string, id robot.ID) string {
	return op + "/" + id.String()
}

var _ robot.Driver = (*Driver)(nil)
