package robot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Actuator is the handle for one physical actuator. It caches the last
// known-good telemetry and arbitrates which loop may command it.
type Actuator struct {
	id     ID
	role   Role
	driver Driver

	mu     sync.Mutex
	last   Telemetry
	valid  bool
	holder string
}

// ID returns the controller id.
func (a *Actuator) ID() ID {
	return a.id
}

// Role returns the actuator's teleoperation role.
func (a *Actuator) Role() Role {
	return a.role
}

func (a *Actuator) String() string {
	return fmt.Sprintf("%s#%d", a.role.Part(), a.id)
}

// Query reads live telemetry. A failed query leaves the cached value untouched.
func (a *Actuator) Query(ctx context.Context) (Telemetry, error) {
	t, err := a.driver.Query(ctx, a.id)
	if err != nil {
		return Telemetry{}, &TransportError{Actuator: a.id, Op: "query", Err: err}
	}
	return a.remember(t), nil
}

// Last returns the most recent successful sample.
func (a *Actuator) Last() (Telemetry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.valid
}

// Stop de-energizes the actuator whoever holds it. Stopping is always allowed.
func (a *Actuator) Stop(ctx context.Context) error {
	if err := a.driver.SetStop(ctx, a.id); err != nil {
		return &TransportError{Actuator: a.id, Op: "stop", Err: err}
	}
	return nil
}

// Holder returns the name of the current lease holder, or "" when free.
func (a *Actuator) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

// Acquire takes exclusive command access for holder. It fails fast with a
// SafetyViolation when another holder is active.
func (a *Actuator) Acquire(holder string) (*Lease, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.holder != "" {
		return nil, &SafetyViolation{Actuator: a.id, Holder: a.holder, Requester: holder}
	}
	a.holder = holder
	return &Lease{actuator: a, holder: holder}, nil
}

func (a *Actuator) remember(t Telemetry) Telemetry {
	if t.SampledAt.IsZero() {
		t.SampledAt = time.Now()
	}
	a.mu.Lock()
	a.last = t
	a.valid = true
	a.mu.Unlock()
	return t
}

func (a *Actuator) release(holder string) {
	a.mu.Lock()
	if a.holder == holder {
		a.holder = ""
	}
	a.mu.Unlock()
}

// Lease is single-writer access to an actuator's motion commands.
type Lease struct {
	actuator *Actuator
	holder   string
	released atomic.Bool
}

// Actuator returns the leased actuator.
func (l *Lease) Actuator() *Actuator {
	return l.actuator
}

// SetPosition validates and sends a motion command.
func (l *Lease) SetPosition(ctx context.Context, cmd Command) (Telemetry, error) {
	if l.released.Load() {
		return Telemetry{}, ErrLeaseReleased
	}
	if err := cmd.Validate(); err != nil {
		return Telemetry{}, err
	}

	a := l.actuator
	t, err := a.driver.SetPosition(ctx, a.id, cmd)
	if err != nil {
		return Telemetry{}, &TransportError{Actuator: a.id, Op: "set position", Err: err}
	}
	return a.remember(t), nil
}

// SetReference redefines the actuator's current position as value.
func (l *Lease) SetReference(ctx context.Context, value float64) error {
	if l.released.Load() {
		return ErrLeaseReleased
	}

	a := l.actuator
	if err := a.driver.SetAbsoluteReference(ctx, a.id, value); err != nil {
		return &TransportError{Actuator: a.id, Op: "set reference", Err: err}
	}
	return nil
}

// Stop de-energizes the actuator. It works on a released lease too.
func (l *Lease) Stop(ctx context.Context) error {
	return l.actuator.Stop(ctx)
}

// Release gives up command access. Safe to call more than once.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.actuator.release(l.holder)
	}
}
