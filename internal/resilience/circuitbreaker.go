// Package resilience guards the outbound edges of lectern: display sinks
// that may go away mid-service and speech-to-text backends that may refuse a
// session.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open). A
// publish sink wrapped in a Breaker stops being dialled after repeated
// failures and is probed again once the reset timeout passes. [Group]
// layers ordered failover on top of per-entry breakers, and [STTFallback]
// uses it to start a transcription session on the first healthy backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a [Breaker] rejects a call without running
// it.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has elapsed since the breaker opened.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. A failed
	// probe re-opens the breaker; enough successful probes close it.
	StateHalfOpen
)

// String returns the lower-case state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults noted below.
type BreakerConfig struct {
	// Name labels the breaker in logs, e.g. "sink:propresenter".
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenProbes is the number of successful probes needed to close the
	// breaker again. At most this many probes run concurrently. Default: 1.
	HalfOpenProbes int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker unlocked.
	OnStateChange func(name string, from, to State)
}

// Breaker implements the circuit breaker pattern around a fallible call.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
	probesOK int
}

// NewBreaker returns a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Name returns the configured label.
func (b *Breaker) Name() string { return b.cfg.Name }

// Do runs fn unless the breaker is open. Errors from fn count as failures,
// except context cancellation, which says nothing about the remote side.
// A context that is already done is returned as-is without calling fn.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	var from State
	transitioned := false
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		from, transitioned = b.state, true
		b.state = StateHalfOpen
		b.inFlight, b.probesOK = 0, 0
	}

	var (
		probe bool
		err   error
	)
	switch b.state {
	case StateOpen:
		err = fmt.Errorf("%w: %s", ErrCircuitOpen, b.cfg.Name)
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenProbes {
			err = fmt.Errorf("%w: %s (probing)", ErrCircuitOpen, b.cfg.Name)
		} else {
			b.inFlight++
			probe = true
		}
	}
	b.mu.Unlock()

	if transitioned {
		b.notify(from, StateHalfOpen)
	}
	return probe, err
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(probe bool, err error) {
	neutral := errors.Is(err, context.Canceled)

	b.mu.Lock()
	from := b.state
	if probe {
		b.inFlight--
	}
	switch {
	case neutral:
	case err != nil && probe:
		b.trip()
	case err != nil:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	case probe:
		b.probesOK++
		if b.probesOK >= b.cfg.HalfOpenProbes {
			b.state = StateClosed
			b.failures = 0
		}
	default:
		b.failures = 0
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from == to {
		return
	}
	if to == StateOpen {
		slog.Warn("circuit opened", "name", b.cfg.Name, "from", from.String(), "consecutive_failures", failures, "error", err)
	} else {
		slog.Info("circuit closed", "name", b.cfg.Name)
	}
	b.notify(from, to)
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = b.cfg.MaxFailures
	b.probesOK = 0
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State reports the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call to [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Check returns a wrapped [ErrCircuitOpen] while the breaker is open. Its
// signature matches a readiness checker.
func (b *Breaker) Check(context.Context) error {
	if b.State() == StateOpen {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.cfg.Name)
	}
	return nil
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures, b.inFlight, b.probesOK = 0, 0, 0
	b.mu.Unlock()
	if from != StateClosed {
		slog.Info("circuit reset", "name", b.cfg.Name)
		b.notify(from, StateClosed)
	}
}
