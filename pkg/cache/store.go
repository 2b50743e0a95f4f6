// Package cache defines the reading cache contract used by the furigana
// annotator and a tiered composition of stores.
//
// A reading cache maps a literal source string (a kanji run or a whole
// sentence) to the annotation markup resolved for it. Entries never expire;
// a later Put for the same key overwrites the previous value and Delete is the
// only invalidation path.
//
// Implementations live in sub-packages:
//
//   - memory: in-process LRU (github.com/hashicorp/golang-lru/v2)
//   - sqlite: single-file database (github.com/mattn/go-sqlite3)
//   - postgres: shared table (github.com/jackc/pgx/v5)
//   - redis: shared key space (github.com/redis/go-redis/v9)
package cache

import (
	"context"
	"errors"
)

// ErrClosed is returned by stores that have been closed.
var ErrClosed = errors.New("cache: store is closed")

// Store is a persistent key/value store for resolved readings.
//
// Implementations must be safe for concurrent use. Writes for the same key are
// idempotent, so callers may race on a miss without coordination.
type Store interface {
	// Get returns the value stored under key. ok is false on a miss; err is
	// reserved for failures of the underlying store.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report their health. It is used for
// readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
