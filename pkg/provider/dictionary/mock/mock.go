// Package mock provides a test double for the dictionary.Lookuper interface.
//
// Example:
//
//	d := &mock.Lookuper{
//	    Entries: map[string][]dictionary.Candidate{
//	        "日本": {{Headword: "日本", Reading: "にほん"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
)

var _ dictionary.Lookuper = (*Lookuper)(nil)

// Lookuper is a mock implementation of dictionary.Lookuper. It answers from
// Entries and records every call. Set Err (or ErrFor) to inject failures.
type Lookuper struct {
	mu sync.Mutex

	// Entries maps a looked-up word to the candidates returned for it.
	Entries map[string][]dictionary.Candidate

	// Err, if non-nil, is returned for every call.
	Err error

	// ErrFor injects an error for specific words. Takes precedence over Entries.
	ErrFor map[string]error

	// Calls records every word passed to Lookup, in order.
	Calls []string
}

// Lookup implements dictionary.Lookuper.
func (l *Lookuper) Lookup(_ context.Context, word string) ([]dictionary.Candidate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, word)
	if l.Err != nil {
		return nil, l.Err
	}
	if err, ok := l.ErrFor[word]; ok {
		return nil, err
	}
	return l.Entries[word], nil
}

// CallCount returns how many times Lookup was called.
func (l *Lookuper) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Calls)
}

// CallsFor returns how many times Lookup was called with word.
func (l *Lookuper) CallsFor(word string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.Calls {
		if c == word {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (l *Lookuper) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = nil
}
