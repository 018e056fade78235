// Package resilience provides circuit breaker and provider failover primitives.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops a client from hammering a dependency that keeps failing. The API
// client wraps every server call in one. [FallbackGroup] composes several
// instances of one provider type, each behind its own breaker, so a failing
// primary is bypassed in favour of a healthy fallback; [STTFallback] applies
// it to speech recognizers.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected immediately with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A
	// limited number of calls are allowed through; if they succeed the breaker
	// closes, otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// defaults noted.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is the open period before probes are let through.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax successful probes close the breaker again; it is also the
	// number of probes allowed in flight. Default: 3.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. Other
	// errors are returned untouched. Default: [DefaultIsFailure].
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultIsFailure counts every error except a cancelled or expired context,
// which says nothing about the dependency's health.
func DefaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreaker is a closed/open/half-open breaker around calls to one
// dependency.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int // half-open calls in flight or succeeded
	passed   int // half-open successes
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = DefaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn unless the breaker is open, in which case it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, notify, err := cb.admit()
	notify()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	var after func()
	switch {
	case err == nil:
		after = cb.succeeded(probe)
	case cb.cfg.IsFailure(err):
		after = cb.failed(probe)
	default:
		if probe {
			cb.probes--
		}
		after = func() {}
	}
	cb.mu.Unlock()
	after()
	return err
}

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe bool, notify func(), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	notify = func() {}

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, notify, ErrCircuitOpen
		}
		cb.probes, cb.passed = 0, 0
		notify = cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, notify, ErrCircuitOpen
		}
		cb.probes++
		return true, notify, nil
	}
	return false, notify, nil
}

// succeeded must be called with cb.mu held.
func (cb *CircuitBreaker) succeeded(probe bool) func() {
	if !probe {
		cb.failures = 0
		return func() {}
	}
	if cb.state != StateHalfOpen {
		// Another probe already re-opened the breaker.
		return func() {}
	}
	cb.passed++
	if cb.passed < cb.cfg.HalfOpenMax {
		return func() {}
	}
	cb.failures, cb.probes, cb.passed = 0, 0, 0
	return cb.transition(StateClosed)
}

// failed must be called with cb.mu held.
func (cb *CircuitBreaker) failed(probe bool) func() {
	cb.failures++
	switch {
	case probe && cb.state == StateHalfOpen:
	case cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures:
	default:
		return func() {}
	}
	cb.openedAt = cb.cfg.Now()
	return cb.transition(StateOpen)
}

// transition must be called with cb.mu held. The returned func runs the
// state change callback and must be called after unlocking.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.state = to
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", cb.cfg.Name, "from", from, "to", to, "consecutive_failures", cb.failures)

	hook := cb.cfg.OnStateChange
	if hook == nil || from == to {
		return func() {}
	}
	name := cb.cfg.Name
	return func() { hook(name, from, to) }
}

// State reports the breaker's state. An open breaker whose reset timeout
// has passed reports [StateHalfOpen]; the transition itself happens on the
// next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures, cb.probes, cb.passed = 0, 0, 0
	notify := cb.transition(StateClosed)
	cb.mu.Unlock()
	notify()
}
