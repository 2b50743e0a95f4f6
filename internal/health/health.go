// Package health serves the liveness and readiness probes.
//
//   - GET /healthz answers 200 whenever the process can serve HTTP.
//   - GET /readyz runs every [Checker] concurrently. It answers 200 with
//     status "ok" when all pass, 200 with status "degraded" when some only
//     report reduced capacity (see [Degraded]), and 503 with status "fail"
//     as soon as one check fails outright.
//
// Checkers built with [BreakerCheck] also attach the breaker state of every
// backend in their chain under "backends".
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kotoba/internal/resilience"
	"github.com/MrWong99/kotoba/pkg/cache"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// Checker is a named readiness check.
type Checker struct {
	// Name keys the check in the response (e.g. "cache", "dictionary").
	Name string

	// Check probes the dependency and must respect ctx. A nil error passes;
	// an error wrapped with [Degraded] keeps the service ready.
	Check func(ctx context.Context) error

	// Detail, if set, adds extra context for the check to the response.
	Detail func() any
}

type degradedError struct{ err error }

func (e degradedError) Error() string { return e.err.Error() }
func (e degradedError) Unwrap() error { return e.err }

// Degraded marks err as reduced capacity rather than failure.
func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return degradedError{err: err}
}

// IsDegraded reports whether err was marked with [Degraded].
func IsDegraded(err error) bool {
	var d degradedError
	return errors.As(err, &d)
}

type result struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] running checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: statusOK})
}

// Readyz is the readiness probe. Each checker gets its own [checkTimeout]
// derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: statusOK, Checks: make(map[string]string, len(h.checkers))}
	var mu sync.Mutex

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			err := c.Check(ctx)
			cancel()

			var detail any
			if c.Detail != nil {
				detail = c.Detail()
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Checks[c.Name] = statusOK
			case IsDegraded(err):
				res.Checks[c.Name] = statusDegraded + ": " + err.Error()
				if res.Status == statusOK {
					res.Status = statusDegraded
				}
			default:
				res.Checks[c.Name] = statusFail + ": " + err.Error()
				res.Status = statusFail
			}
			if detail != nil {
				if res.Details == nil {
					res.Details = make(map[string]any)
				}
				res.Details[c.Name] = detail
			}
			return nil
		})
	}
	_ = g.Wait()

	code := http.StatusOK
	if res.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// PingCheck checks a reading cache store.
func PingCheck(name string, p cache.Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// backend is the JSON view of one breaker.
type backend struct {
	Name      string     `json:"name"`
	State     string     `json:"state"`
	Failures  int        `json:"consecutive_failures,omitempty"`
	OpenSince *time.Time `json:"open_since,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// BreakerCheck checks a fallback chain. It fails once every backend has an
// open breaker and reports [Degraded] while only some have.
func BreakerCheck(name string, statuses func() []resilience.BreakerStatus) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			var open []string
			st := statuses()
			for _, s := range st {
				if s.State == resilience.StateOpen {
					open = append(open, s.Name)
				}
			}
			switch {
			case len(open) == 0:
				return nil
			case len(open) == len(st):
				return fmt.Errorf("%w: %s", errAllOpen, strings.Join(open, ", "))
			default:
				return Degraded(fmt.Errorf("circuit open: %s", strings.Join(open, ", ")))
			}
		},
		Detail: func() any {
			st := statuses()
			out := make([]backend, len(st))
			for i, s := range st {
				out[i] = backend{Name: s.Name, State: s.State.String(), Failures: s.Failures, LastError: s.LastError}
				if !s.OpenedAt.IsZero() {
					out[i].OpenSince = &s.OpenedAt
				}
			}
			return out
		},
	}
}

var errAllOpen = errors.New("all circuit breakers open")

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
