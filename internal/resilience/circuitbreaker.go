// Package resilience keeps flaky external services (dictionary APIs,
// transcription, the tutor LLM, speech synthesis) from taking the practice
// loop down with them.
//
// [Retry] re-runs a call with bounded exponential backoff and a per-attempt
// timeout. [CircuitBreaker] stops hammering a backend that keeps failing.
// [FallbackGroup] walks several backends of the same kind, each behind its
// own breaker, until one answers. The per-kind types ([DictionaryFallback],
// [RetryLookuper], [STTFallback], ...) put these behind the provider
// interfaces so callers never see them.
//
// Errors marked with [Permanent] are returned at once: they are not retried,
// do not count against a breaker and do not cascade to fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down ends.
	StateOpen

	// StateHalfOpen lets a few probe calls through. Enough successes close
	// the breaker, a single failure opens it again.
	StateHalfOpen
)

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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, metrics and readiness output.
	Name string

	// MaxFailures is the run of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is the cool-down before an open breaker admits probes.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probes admitted at once and the number
	// of successful probes needed to close. Default: 3.
	HalfOpenMax int

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Clock replaces time.Now. Tests use it to skip the cool-down.
	Clock func() time.Time
}

// BreakerStatus is a point-in-time view of a [CircuitBreaker].
type BreakerStatus struct {
	Name  string
	State State

	// Failures is the current run of consecutive failures.
	Failures int

	// OpenedAt is when the breaker last opened. Zero while closed.
	OpenedAt time.Time

	// LastError is the message of the most recent counted failure.
	LastError string
}

// CircuitBreaker is a three-state (closed, open, half-open) breaker guarding a
// single backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	lastErr   error
	inFlight  int // half-open probes currently running
	succeeded int // half-open probes that came back fine
}

// NewCircuitBreaker creates a closed [CircuitBreaker].
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
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, now: now}
}

// Name returns the label the breaker was created with.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker is rejecting calls, in which case it
// returns [ErrCircuitOpen] without calling fn. Permanent errors from fn pass
// through without being counted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.inFlight, cb.succeeded = 0, 0
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.inFlight++
		probe = true
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return probe, nil
}

// settle books the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if probe && cb.state == StateHalfOpen {
		cb.inFlight--
	}
	switch {
	case err == nil:
		cb.failures = 0
		if probe && cb.state == StateHalfOpen {
			cb.succeeded++
			if cb.succeeded >= cb.cfg.HalfOpenMax {
				cb.state = StateClosed
				cb.openedAt = time.Time{}
			}
		}
	case IsPermanent(err):
		// The backend answered; the request was bad.
	default:
		cb.failures++
		cb.lastErr = err
		if probe || cb.failures >= cb.cfg.MaxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	to, failures := cb.state, cb.failures
	cb.mu.Unlock()

	if from != to {
		switch to {
		case StateOpen:
			slog.Warn("resilience: circuit breaker opened",
				"name", cb.cfg.Name, "consecutive_failures", failures, "err", err)
		case StateClosed:
			slog.Info("resilience: circuit breaker closed", "name", cb.cfg.Name)
		}
	}
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current [State]. An open breaker whose cool-down has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State { return cb.Status().State }

// Status returns a snapshot of the breaker.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := BreakerStatus{
		Name:     cb.cfg.Name,
		State:    cb.state,
		Failures: cb.failures,
		OpenedAt: cb.openedAt,
	}
	if cb.lastErr != nil {
		st.LastError = cb.lastErr.Error()
	}
	if st.State == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		st.State = StateHalfOpen
	}
	return st
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.inFlight, cb.succeeded = 0, 0, 0
	cb.openedAt = time.Time{}
	cb.lastErr = nil
	cb.mu.Unlock()
	slog.Info("resilience: circuit breaker reset", "name", cb.cfg.Name)
	cb.notify(from, StateClosed)
}
