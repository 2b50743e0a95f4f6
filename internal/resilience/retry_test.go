package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	got, err := Retry(context.Background(), fastRetry(3), "op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTest
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetry_HardCeiling(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Retry(context.Background(), fastRetry(4), "op", func(context.Context) (int, error) {
		calls++
		return 0, errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want wrapped errTest", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Retry(context.Background(), fastRetry(5), "op", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(errTest)
	})
	if !IsPermanent(err) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want permanent errTest", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetry_ParentContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour}

	calls := 0
	_, err := Retry(ctx, cfg, "op", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errTest
	})
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want context.Canceled and errTest", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetry_AttemptTimeout(t *testing.T) {
	t.Parallel()
	cfg := fastRetry(2)
	cfg.AttemptTimeout = 5 * time.Millisecond

	calls := 0
	_, err := Retry(context.Background(), cfg, "op", func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (attempt timeouts are retried)", calls)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tc := range tests {
		if got := cfg.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryConfig_Defaults(t *testing.T) {
	t.Parallel()
	got := RetryConfig{}.withDefaults()
	if got != DefaultRetryConfig() {
		t.Fatalf("withDefaults = %+v, want %+v", got, DefaultRetryConfig())
	}
}

func TestPermanent(t *testing.T) {
	t.Parallel()
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
	p := Permanent(errTest)
	if Permanent(p) != p {
		t.Error("Permanent double-wrapped")
	}
	if p.Error() != errTest.Error() {
		t.Errorf("Error() = %q", p.Error())
	}
	if !IsPermanent(context.Canceled) {
		t.Error("context.Canceled not permanent")
	}
	if IsPermanent(context.DeadlineExceeded) {
		t.Error("DeadlineExceeded must stay retryable")
	}
}
