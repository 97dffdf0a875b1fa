// Package homing finds an actuator's mechanical hard stop by driving it
// slowly under a tight torque cap, then redefines that stop as a known
// reference position.
package homing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/metrics"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

// Holder is the lease holder name used while homing.
const Holder = "homing"

var (
	// ErrInProgress is returned by Run while the same actuator is already seeking.
	ErrInProgress = errors.New("homing already in progress")
	// ErrCanceled is the failure reason when homing is cancelled.
	ErrCanceled = errors.New("homing canceled")
	// ErrTimeout is the failure reason when no hard stop was found in time.
	ErrTimeout = errors.New("hard stop not found before timeout")
)

// State is the homing state of one actuator.
type State int

const (
	Idle State = iota
	Seeking
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Seeking:
		return "seeking"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure is the reason a homing run ended in Failed.
type Failure struct {
	Role   robot.Role
	Reason error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("homing %s failed: %v", f.Role.Part(), f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Reason
}

// Result describes one finished homing run.
type Result struct {
	Role      robot.Role
	State     State // Succeeded or Failed
	Err       error // *Failure when Failed
	Polls     int   // velocity commands sent while seeking
	Torque    float64
	Reference float64
	Finished  time.Time
}

// Option configures a Procedure.
type Option func(*Procedure)

// WithMetrics reports finished runs to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Procedure) { p.metrics = m }
}

// WithObserver calls fn on every state transition. fn runs on the homing
// goroutine under the procedure's lock: it must not block or call back into
// the Procedure.
func WithObserver(fn func(robot.Role, State)) Option {
	return func(p *Procedure) { p.observer = fn }
}

// WithStopTimeout bounds the final stop command.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Procedure) { p.stopTimeout = d }
}

// Procedure is the homing state machine for one actuator:
// Idle -> Seeking -> Succeeded | Failed -> Idle.
type Procedure struct {
	actuator    *robot.Actuator
	profile     robot.HomingProfile
	stopTimeout time.Duration
	metrics     *metrics.Metrics
	observer    func(robot.Role, State)

	mu       sync.Mutex
	state    State
	last     *Result
	canceled atomic.Bool
}

// New creates a procedure for actuator using profile.
func New(actuator *robot.Actuator, profile robot.HomingProfile, opts ...Option) *Procedure {
	p := &Procedure{
		actuator:    actuator,
		profile:     profile,
		stopTimeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the live state.
func (p *Procedure) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Seeking returns the profile being probed with while the procedure is
// Seeking: the probe velocity, torque cap, threshold and crossing direction.
func (p *Procedure) Seeking() (robot.HomingProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Seeking {
		return robot.HomingProfile{}, false
	}
	return p.profile, true
}

// Last returns the most recent finished run.
func (p *Procedure) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}

// Cancel asks a seeking run to give up at its next poll. The actuator is
// still stopped by the run's cleanup.
func (p *Procedure) Cancel() {
	p.canceled.Store(true)
}

// Run homes the actuator and blocks until it succeeds, fails or is
// cancelled. A call made while already seeking returns ErrInProgress without
// touching the actuator. The actuator always receives a final stop.
func (p *Procedure) Run(ctx context.Context) (Result, error) {
	lease, err := p.begin()
	if err != nil {
		return Result{}, err
	}
	return p.run(ctx, lease)
}

// Start is the asynchronous form of Run. Re-entry and lease conflicts are
// reported synchronously; the result is delivered on the returned channel.
func (p *Procedure) Start(ctx context.Context) (<-chan Result, error) {
	lease, err := p.begin()
	if err != nil {
		return nil, err
	}
	results := make(chan Result, 1)
	go func() {
		defer close(results)
		res, _ := p.run(ctx, lease)
		results <- res
	}()
	return results, nil
}

func (p *Procedure) run(ctx context.Context, lease *robot.Lease) (res Result, err error) {
	role := p.actuator.Role()
	ctx = logger.WithKV(logger.WithName(ctx, "homing"), "actuator", p.actuator.String())
	logger.InfoKV(ctx, "Homing started",
		"velocity", p.profile.Velocity,
		"max_torque", p.profile.MaxTorque,
		"threshold", p.profile.Threshold)

	defer func() {
		if r := recover(); r != nil {
			res = p.fail(Result{Role: role, Reference: p.profile.Reference, Polls: res.Polls}, fmt.Errorf("panic: %v", r))
			err = res.Err
		}
		if stopErr := robot.StopAll(ctx, p.stopTimeout, p.actuator); stopErr != nil {
			logger.ErrorKV(ctx, "Final stop failed", "error", stopErr)
		}
		lease.Release()
		p.finish(ctx, res)
	}()

	res = p.seek(ctx, lease)
	return res, res.Err
}

func (p *Procedure) begin() (*robot.Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Seeking {
		return nil, ErrInProgress
	}
	lease, err := p.actuator.Acquire(Holder)
	if err != nil {
		p.metrics.SafetyViolation(Holder)
		return nil, err
	}
	p.canceled.Store(false)
	p.state = Seeking
	p.notify(Seeking)
	return lease, nil
}

func (p *Procedure) seek(ctx context.Context, lease *robot.Lease) Result {
	res := Result{Role: p.actuator.Role(), Reference: p.profile.Reference}

	if p.profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.profile.Timeout, ErrTimeout)
		defer cancel()
	}

	// Stop any existing motion before probing.
	if err := lease.Stop(ctx); err != nil {
		return p.fail(res, err)
	}
	if err := robot.Sleep(ctx, p.profile.SettleDelay); err != nil {
		return p.fail(res, interrupted(ctx))
	}

	cmd := robot.Command{
		Position:      robot.Unconstrained,
		Velocity:      robot.At(p.profile.Velocity),
		MaximumTorque: p.profile.MaxTorque,
	}

	for {
		if p.canceled.Load() {
			return p.fail(res, ErrCanceled)
		}

		t, err := lease.SetPosition(ctx, cmd)
		res.Polls++
		if err != nil {
			if ctx.Err() != nil {
				return p.fail(res, interrupted(ctx))
			}
			return p.fail(res, err)
		}

		if p.profile.Crossed(t.Torque) {
			res.Torque = t.Torque
			if err := lease.SetReference(ctx, p.profile.Reference); err != nil {
				return p.fail(res, err)
			}
			// The reference is set; a cancel during the settle pause does not undo it.
			_ = robot.Sleep(ctx, p.profile.SettleDelay)

			res.State = Succeeded
			res.Finished = time.Now()
			return res
		}

		if err := robot.Sleep(ctx, p.profile.PollInterval); err != nil {
			return p.fail(res, interrupted(ctx))
		}
	}
}

func (p *Procedure) fail(res Result, reason error) Result {
	res.State = Failed
	res.Err = &Failure{Role: p.actuator.Role(), Reason: reason}
	res.Finished = time.Now()
	return res
}

func (p *Procedure) finish(ctx context.Context, res Result) {
	p.mu.Lock()
	p.last = &res
	p.notify(res.State)
	p.state = Idle
	p.notify(Idle)
	p.mu.Unlock()

	p.metrics.HomingFinished(res.Role, res.State.String())
	if res.State == Succeeded {
		logger.InfoKV(ctx, "Homing completed", "polls", res.Polls, "torque", res.Torque, "reference", res.Reference)
	} else {
		logger.WarnKV(ctx, "Homing failed", "polls", res.Polls, "error", res.Err)
	}
}

// notify must be called with p.mu held so transitions are observed in order.
func (p *Procedure) notify(s State) {
	if p.observer != nil {
		p.observer(p.actuator.Role(), s)
	}
}

func interrupted(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrTimeout) {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
}
