package resilience

import (
	"context"

	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
)

// DictionaryFallback implements [dictionary.Lookuper] across several
// dictionary backends. Unlike the other fallbacks it also moves on when a
// backend answers with no candidates, so an offline index can sit in front of
// a remote API and a morphological analyser can catch what neither knows.
type DictionaryFallback struct {
	group *FallbackGroup[dictionary.Lookuper]
}

var _ dictionary.Lookuper = (*DictionaryFallback)(nil)

// NewDictionaryFallback creates a [DictionaryFallback] with primary as the
// first backend consulted.
func NewDictionaryFallback(primary dictionary.Lookuper, primaryName string, cfg FallbackConfig) *DictionaryFallback {
	return &DictionaryFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional dictionary backend.
func (f *DictionaryFallback) AddFallback(name string, l dictionary.Lookuper) {
	f.group.AddFallback(name, l)
}

// Statuses reports the breaker of every backend in chain order.
func (f *DictionaryFallback) Statuses() []BreakerStatus { return f.group.Statuses() }

// Lookup returns the candidates of the first backend that has any. When no
// backend has candidates and at least one failed, the failure is returned so
// a retry decorator can try again; otherwise the word is simply unknown.
func (f *DictionaryFallback) Lookup(ctx context.Context, word string) ([]dictionary.Candidate, error) {
	return walk(f.group, func(l dictionary.Lookuper) ([]dictionary.Candidate, error) {
		return l.Lookup(ctx, word)
	}, func(c []dictionary.Candidate) bool { return len(c) > 0 })
}

// RetryLookuper retries failed lookups with exponential backoff.
type RetryLookuper struct {
	next dictionary.Lookuper
	cfg  RetryConfig
}

var _ dictionary.Lookuper = (*RetryLookuper)(nil)

// NewRetryLookuper wraps next.
func NewRetryLookuper(next dictionary.Lookuper, cfg RetryConfig) *RetryLookuper {
	return &RetryLookuper{next: next, cfg: cfg}
}

// Lookup implements [dictionary.Lookuper].
func (r *RetryLookuper) Lookup(ctx context.Context, word string) ([]dictionary.Candidate, error) {
	return Retry(ctx, r.cfg, "dictionary lookup", func(ctx context.Context) ([]dictionary.Candidate, error) {
		return r.next.Lookup(ctx, word)
	})
}
