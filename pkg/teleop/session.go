package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/filter"
	"github.com/proteus-gripper/proteus/pkg/homing"
	"github.com/proteus-gripper/proteus/pkg/metrics"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

var (
	// ErrClosed is returned by session operations after Close.
	ErrClosed = errors.New("session closed")
	// ErrStopping is returned by Start while the previous mirror run is
	// still stopping its actuators.
	ErrStopping = errors.New("mirror still stopping")
)

// ZeroHolder is the lease holder name used while redefining a reference.
const ZeroHolder = "zero"

// EventKind identifies a session event.
type EventKind int

const (
	MirrorStarted EventKind = iota
	MirrorStopped
	HomingChanged
	MotionStarted
	MotionStopped
)

func (k EventKind) String() string {
	switch k {
	case MirrorStarted:
		return "mirror started"
	case MirrorStopped:
		return "mirror stopped"
	case HomingChanged:
		return "homing changed"
	case MotionStarted:
		return "motion started"
	case MotionStopped:
		return "motion stopped"
	default:
		return "unknown"
	}
}

// Event reports a session transition to the display.
type Event struct {
	Kind   EventKind
	Role   robot.Role   // HomingChanged only
	Homing homing.State // HomingChanged only
	Err    error
	At     time.Time
}

// run is one execution of the mirror or motion loop.
type run struct {
	done chan struct{}
	err  error // written before done is closed
}

func newRun() *run {
	return &run{done: make(chan struct{})}
}

func (r *run) finish(err error) {
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	r.err = err
	close(r.done)
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// wait returns the run's error once it has finished. A nil run has nothing
// to wait for.
func (r *run) wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMetrics reports every loop of the session to m.
func WithMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithSteps forwards every mirror iteration to fn.
func WithSteps(fn func(Step)) SessionOption {
	return func(s *Session) { s.steps = fn }
}

// Session owns the leader and follower handles and arbitrates the mirror
// loop, homing and manual motion between them.
type Session struct {
	cfg      robot.Config
	leader   *robot.Actuator
	follower *robot.Actuator
	filter   *filter.Exponential
	mirror   *Mirror
	motion   *Motion
	homing   map[robot.Role]*homing.Procedure
	metrics  *metrics.Metrics
	steps    func(Step)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	events chan Event

	running atomic.Bool

	mu        sync.Mutex
	closed    bool
	mirrorRun *run
	motionRun *run
}

// NewSession creates a session over the actuators cfg names. Loops started by
// the session inherit ctx's values and end when Close is called.
func NewSession(ctx context.Context, reg *robot.Registry, cfg *robot.Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	leader, follower, err := reg.Pair(cfg)
	if err != nil {
		return nil, err
	}
	f, err := filter.New(cfg.Mirror.Alpha)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      *cfg,
		leader:   leader,
		follower: follower,
		filter:   f,
		events:   make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(logger.WithName(ctx, "session"))

	s.mirror = NewMirror(leader, follower, f, cfg.Mirror,
		WithMirrorMetrics(s.metrics),
		WithMirrorStopTimeout(cfg.StopTimeout),
		WithStepObserver(s.steps))
	s.motion = NewMotion(follower, cfg.Jog, cfg.StopTimeout)

	observe := func(role robot.Role, st homing.State) {
		s.emit(Event{Kind: HomingChanged, Role: role, Homing: st})
	}
	s.homing = map[robot.Role]*homing.Procedure{
		robot.Leader: homing.New(leader, cfg.Leader.Homing,
			homing.WithMetrics(s.metrics), homing.WithObserver(observe), homing.WithStopTimeout(cfg.StopTimeout)),
		robot.Follower: homing.New(follower, cfg.Follower.Homing,
			homing.WithMetrics(s.metrics), homing.WithObserver(observe), homing.WithStopTimeout(cfg.StopTimeout)),
	}
	return s, nil
}

// Leader returns the leader handle.
func (s *Session) Leader() *robot.Actuator { return s.leader }

// Follower returns the follower handle.
func (s *Session) Follower() *robot.Actuator { return s.follower }

// Mirror returns the session's mirror loop.
func (s *Session) Mirror() *Mirror { return s.mirror }

// Events returns session transitions. Events are dropped when the reader
// falls behind. The channel is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start launches the mirror loop and returns immediately. Starting a running
// session does nothing. While a stopped run is still shutting down Start
// returns ErrStopping. A conflicting homing or motion command on either
// actuator is reported as a *robot.SafetyViolation.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running.Load() {
		return nil
	}
	if s.mirrorRun != nil && !s.mirrorRun.finished() {
		return ErrStopping
	}

	leases, err := s.mirror.Acquire()
	if err != nil {
		logger.WarnKV(s.ctx, "Mirror start refused", "error", err)
		return err
	}

	r := newRun()
	s.mirrorRun = r
	s.running.Store(true)
	s.emit(Event{Kind: MirrorStarted})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.mirror.Drive(s.ctx, leases)
		s.running.Store(false)
		r.finish(err)
		s.emit(Event{Kind: MirrorStopped, Err: r.err})
	}()
	return nil
}

// Stop asks the mirror loop to exit. It does not wait; use Wait.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running.Store(false)
	s.mirror.Stop()
}

// Running reports whether mirroring is on.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Wait blocks until the current mirror run has fully shut down and returns
// the error it ended with.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.mirrorRun
	s.mu.Unlock()
	return r.wait(ctx)
}

// SetAlpha changes the filter constant without resetting its history.
func (s *Session) SetAlpha(alpha float64) error {
	if err := s.filter.SetAlpha(alpha); err != nil {
		return err
	}
	logger.InfoKV(s.ctx, "Filter alpha changed", "alpha", alpha)
	return nil
}

// Alpha returns the filter constant.
func (s *Session) Alpha() float64 {
	return s.filter.Alpha()
}

// Home starts homing role's actuator in the background. Re-entry while
// seeking returns homing.ErrInProgress; a leased actuator returns a
// *robot.SafetyViolation.
func (s *Session) Home(role robot.Role) (<-chan homing.Result, error) {
	p, err := s.procedure(role)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	results, err := p.Start(s.ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan homing.Result, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		if res, ok := <-results; ok {
			out <- res
		}
	}()
	return out, nil
}

// CancelHoming stops role's homing at its next poll.
func (s *Session) CancelHoming(role robot.Role) error {
	p, err := s.procedure(role)
	if err != nil {
		return err
	}
	p.Cancel()
	return nil
}

// HomingState returns role's live homing state.
func (s *Session) HomingState(role robot.Role) homing.State {
	p, err := s.procedure(role)
	if err != nil {
		return homing.Idle
	}
	return p.State()
}

// HomingSeeking returns the profile role is probing with while it seeks.
func (s *Session) HomingSeeking(role robot.Role) (robot.HomingProfile, bool) {
	p, err := s.procedure(role)
	if err != nil {
		return robot.HomingProfile{}, false
	}
	return p.Seeking()
}

// LastHoming returns role's most recent homing result.
func (s *Session) LastHoming(role robot.Role) (homing.Result, bool) {
	p, err := s.procedure(role)
	if err != nil {
		return homing.Result{}, false
	}
	return p.Last()
}

func (s *Session) procedure(role robot.Role) (*homing.Procedure, error) {
	p, ok := s.homing[role]
	if !ok {
		return nil, &robot.ValidationError{Field: "role", Value: role, Reason: "unknown role"}
	}
	return p, nil
}

// Jog drives the follower open or closed in velocity mode until Halt.
func (s *Session) Jog(dir Direction) error {
	return s.drive(JogCommand(s.cfg.Jog, dir))
}

// MoveTo holds the follower at position in position mode until Halt.
func (s *Session) MoveTo(position float64) error {
	return s.drive(MoveCommand(s.cfg.Jog, position))
}

// Halt ends the running jog or move-to command. It does not wait; use
// WaitMotion.
func (s *Session) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motion.Halt()
}

// WaitMotion blocks until the latest jog or move-to command has stopped the
// follower and returns the error it ended with.
func (s *Session) WaitMotion(ctx context.Context) error {
	s.mu.Lock()
	r := s.motionRun
	s.mu.Unlock()
	return r.wait(ctx)
}

func (s *Session) drive(cmd robot.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// A new command replaces the running one.
	if s.motionRun != nil {
		s.motion.Halt()
		<-s.motionRun.done
	}

	lease, err := s.motion.Acquire()
	if err != nil {
		s.metrics.SafetyViolation(MotionHolder)
		return err
	}

	r := newRun()
	s.motionRun = r
	s.emit(Event{Kind: MotionStarted})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.finish(s.motion.Drive(s.ctx, lease, cmd))
		s.emit(Event{Kind: MotionStopped, Err: r.err})
	}()
	return nil
}

// Zero redefines role's current position as its homing reference without
// probing for the hard stop.
func (s *Session) Zero(ctx context.Context, role robot.Role) error {
	if _, err := s.procedure(role); err != nil {
		return err
	}
	a, profile := s.leader, s.cfg.Leader.Homing
	if role == robot.Follower {
		a, profile = s.follower, s.cfg.Follower.Homing
	}

	lease, err := a.Acquire(ZeroHolder)
	if err != nil {
		s.metrics.SafetyViolation(ZeroHolder)
		return err
	}
	defer lease.Release()

	if err := lease.SetReference(ctx, profile.Reference); err != nil {
		return fmt.Errorf("zero %s: %w", a, err)
	}
	logger.InfoKV(s.ctx, "Reference redefined", "actuator", a.String(), "reference", profile.Reference)
	return nil
}

// Close ends every loop, waits for them, and sends a final stop to both
// actuators. It returns ctx.Err() if the loops do not finish in time.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	s.Halt()
	for _, p := range s.homing {
		p.Cancel()
	}
	s.cancel()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	var waitErr error
	select {
	case <-finished:
		close(s.events)
	case <-ctx.Done():
		waitErr = fmt.Errorf("wait for loops: %w", ctx.Err())
	}

	stopErr := robot.StopAll(ctx, s.cfg.StopTimeout, s.leader, s.follower)
	if stopErr != nil {
		logger.ErrorKV(s.ctx, "Final stop failed", "error", stopErr)
	}
	logger.Info(s.ctx, "Session closed")
	return errors.Join(waitErr, stopErr)
}

func (s *Session) emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case s.events <- e:
	default:
	}
}
