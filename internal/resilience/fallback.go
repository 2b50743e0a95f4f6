package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend of a [FallbackGroup] could serve a
// call, either because it failed or because its breaker was open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the breaker template applied to every backend of a
// [FallbackGroup]. The breaker name is taken from the backend.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered chain of backends of the same kind, each behind
// its own [CircuitBreaker]. Members must be added before the group is shared.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup creates a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend behind the ones already registered.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(cb)})
}

// Len returns the number of members, primary included.
func (fg *FallbackGroup[T]) Len() int { return len(fg.members) }

// Primary returns the first member.
func (fg *FallbackGroup[T]) Primary() T { return fg.members[0].value }

// Statuses returns a breaker snapshot per member in chain order.
func (fg *FallbackGroup[T]) Statuses() []BreakerStatus {
	out := make([]BreakerStatus, len(fg.members))
	for i := range fg.members {
		out[i] = fg.members[i].breaker.Status()
	}
	return out
}

// Execute calls fn on each member in turn until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn on each member in turn and returns the first
// successful result. A permanent error ends the walk unchanged; when every
// member fails the last failure is returned wrapped in [ErrAllFailed].
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	return walk(fg, fn, nil)
}

// walk is the chain traversal shared by every kind. A result rejected by
// accept is a miss: the backend is healthy but had nothing, so the walk moves
// on without penalising it. If the chain ends in misses only, the zero value
// is returned with a nil error.
func walk[T, R any](fg *FallbackGroup[T], fn func(T) (R, error), accept func(R) bool) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.members {
		m := &fg.members[i]
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		switch {
		case err == nil && (accept == nil || accept(out)):
			return out, nil
		case err == nil:
			slog.Debug("resilience: provider had no result, trying next", "provider", m.name)
		case IsPermanent(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			lastErr = fmt.Errorf("%s: %w", m.name, err)
			slog.Debug("resilience: skipping provider (circuit open)", "provider", m.name)
		default:
			lastErr = err
			slog.Warn("resilience: provider failed, trying next", "provider", m.name, "err", err)
		}
	}
	if lastErr == nil {
		return zero, nil
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
