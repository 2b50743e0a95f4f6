package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig tunes [Retry]. Zero fields take the defaults listed below.
type RetryConfig struct {
	// MaxAttempts is the hard ceiling on calls, the first one included.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt; it doubles after
	// each further failure. Default: 200ms.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Default: 2s.
	MaxDelay time.Duration

	// AttemptTimeout bounds each attempt. Zero leaves attempts bounded only by
	// the caller's context.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the defaults used for zero fields.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// Backoff returns the wait after the given failed attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying or failing over. errors.Is and
// errors.As still see the wrapped error. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent] or is a
// context cancellation.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, context.Canceled)
}

// Retry calls fn until it succeeds, returns a permanent error, ctx is done or
// cfg.MaxAttempts is reached. Each attempt receives a context bounded by
// cfg.AttemptTimeout. The last error is returned wrapped with the attempt
// count; errors.Is sees through the wrapping.
func Retry[R any](ctx context.Context, cfg RetryConfig, name string, fn func(context.Context) (R, error)) (R, error) {
	cfg = cfg.withDefaults()
	var (
		zero    R
		lastErr error
	)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		actx, cancel := attemptContext(ctx, cfg.AttemptTimeout)
		result, err := fn(actx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if IsPermanent(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w: %w", name, ctx.Err(), err)
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := cfg.Backoff(attempt)
		slog.Debug("resilience: attempt failed, backing off",
			"op", name, "attempt", attempt, "wait", wait, "err", err)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		case <-t.C:
		}
	}
	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}

func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
