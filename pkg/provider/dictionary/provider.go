// Package dictionary defines the Lookuper interface for text-to-reading
// dictionary backends.
//
// A dictionary backend resolves a word (usually a run of kanji) to a list of
// candidate entries. Each candidate carries the dictionary headword and its
// reading in kana. Backends range from remote HTTP services (jisho.org) through
// an offline JMdict index to a morphological analyser (kagome).
//
// Callers pick the best candidate themselves; backends must not filter beyond
// what their search naturally returns. Candidates are returned in the backend's
// relevance order.
package dictionary

import (
	"context"
	"errors"
)

// ErrRateLimited is returned (wrapped) by backends whose upstream refused the
// request because of rate limiting. Retry decorators treat it as transient.
var ErrRateLimited = errors.New("dictionary: rate limited")

// Candidate is a single dictionary match.
type Candidate struct {
	// Headword is the written form of the entry, e.g. "食べる".
	Headword string

	// Reading is the kana reading of the whole headword, e.g. "たべる".
	Reading string
}

// Lookuper is the abstraction over any dictionary backend.
//
// Implementations must be safe for concurrent use.
type Lookuper interface {
	// Lookup returns candidate entries for word. An empty slice with a nil error
	// means the backend knows no entry for word.
	Lookup(ctx context.Context, word string) ([]Candidate, error)
}
