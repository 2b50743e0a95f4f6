package resilience

import (
	"errors"
	"slices"
	"testing"
	"time"
)

// chain builds a group of string backends named after their values.
func chain(cfg FallbackConfig, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], cfg)
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

// failing returns a call that fails for the listed backends and records the
// order in which backends were tried.
func failing(tried *[]string, bad ...string) func(string) (string, error) {
	return func(v string) (string, error) {
		*tried = append(*tried, v)
		if slices.Contains(bad, v) {
			return "", errTest
		}
		return "reading from " + v, nil
	}
}

func TestFallbackGroup_Order(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		bad       []string
		want      string
		wantTried []string
	}{
		{"primary answers", nil, "reading from jmdict", []string{"jmdict"}},
		{"second answers", []string{"jmdict"}, "reading from jisho", []string{"jmdict", "jisho"}},
		{"last answers", []string{"jmdict", "jisho"}, "reading from kagome", []string{"jmdict", "jisho", "kagome"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fg := chain(FallbackConfig{}, "jmdict", "jisho", "kagome")
			var tried []string
			got, err := ExecuteWithResult(fg, failing(&tried, tc.bad...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want || !slices.Equal(tried, tc.wantTried) {
				t.Fatalf("got %q after %v, want %q after %v", got, tried, tc.want, tc.wantTried)
			}
		})
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()
	fg := chain(FallbackConfig{}, "whisper", "openai")

	err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()
	fg := chain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}},
		"openai", "ollama")

	var tried []string
	for range 2 {
		_, _ = ExecuteWithResult(fg, failing(&tried, "openai"))
	}

	tried = nil
	if _, err := ExecuteWithResult(fg, failing(&tried)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(tried, []string{"ollama"}) {
		t.Fatalf("tried %v, want ollama only while openai is open", tried)
	}
}

func TestFallbackGroup_EveryBreakerOpen(t *testing.T) {
	t.Parallel()
	fg := chain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}},
		"elevenlabs")
	_ = fg.Execute(func(string) error { return errTest })

	err := fg.Execute(func(string) error { return nil })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping ErrCircuitOpen", err)
	}
}

func TestFallbackGroup_PermanentErrorStopsWalk(t *testing.T) {
	t.Parallel()
	fg := chain(FallbackConfig{}, "whisper", "openai")

	var tried []string
	_, err := ExecuteWithResult(fg, func(v string) (int, error) {
		tried = append(tried, v)
		return 0, Permanent(errTest)
	})
	if !errors.Is(err, errTest) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want the permanent error unwrapped by ErrAllFailed", err)
	}
	if !slices.Equal(tried, []string{"whisper"}) {
		t.Fatalf("tried %v, want whisper only", tried)
	}
}

func TestWalk_MissesMoveOn(t *testing.T) {
	t.Parallel()
	fg := chain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}}, "jmdict", "jisho")
	nonEmpty := func(s string) bool { return s != "" }

	got, err := walk(fg, func(v string) (string, error) {
		if v == "jmdict" {
			return "", nil
		}
		return "にほん", nil
	}, nonEmpty)
	if err != nil || got != "にほん" {
		t.Fatalf("got %q, %v", got, err)
	}

	got, err = walk(fg, func(string) (string, error) { return "", nil }, nonEmpty)
	if err != nil || got != "" {
		t.Fatalf("all misses: got %q, %v; want empty, nil", got, err)
	}
	for _, st := range fg.Statuses() {
		if st.State != StateClosed {
			t.Errorf("%s: state = %v, misses must not trip the breaker", st.Name, st.State)
		}
	}
}

func TestFallbackGroup_Statuses(t *testing.T) {
	t.Parallel()
	fg := chain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}},
		"jisho", "kagome")
	var tried []string
	_, _ = ExecuteWithResult(fg, failing(&tried, "jisho"))

	if fg.Len() != 2 || fg.Primary() != "jisho" {
		t.Fatalf("Len = %d, Primary = %q", fg.Len(), fg.Primary())
	}
	st := fg.Statuses()
	if st[0].Name != "jisho" || st[0].State != StateOpen || st[0].LastError != errTest.Error() {
		t.Errorf("jisho status = %+v", st[0])
	}
	if st[1].Name != "kagome" || st[1].State != StateClosed {
		t.Errorf("kagome status = %+v", st[1])
	}
}
