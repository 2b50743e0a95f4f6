// Package postgres provides a PostgreSQL-backed [cache.Store] so that several
// kotoba instances can share resolved readings.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/kotoba/pkg/cache"
)

const ddlReadingCache = `
CREATE TABLE IF NOT EXISTS reading_cache (
    original_text  TEXT         PRIMARY KEY,
    annotation     TEXT         NOT NULL,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const (
	queryGet    = `SELECT annotation FROM reading_cache WHERE original_text = $1`
	queryPut    = `INSERT INTO reading_cache (original_text, annotation) VALUES ($1, $2) ON CONFLICT (original_text) DO UPDATE SET annotation = EXCLUDED.annotation, updated_at = now()`
	queryDelete = `DELETE FROM reading_cache WHERE original_text = $1`
)

// DB is the subset of [pgxpool.Pool] used by [Store]. It is satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var (
	_ cache.Store  = (*Store)(nil)
	_ cache.Pinger = (*Store)(nil)
)

// Store persists reading annotations in the reading_cache table.
type Store struct {
	db    DB
	close func()
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
// Close releases the pool.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres cache: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres cache: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres cache: migrate: %w", err)
	}
	return &Store{db: pool, close: pool.Close}, nil
}

// NewWithDB wraps an existing connection. The caller keeps ownership of db and
// is responsible for running [Migrate].
func NewWithDB(db DB) *Store {
	return &Store{db: db, close: func() {}}
}

// Migrate creates the reading_cache table if it does not exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, ddlReadingCache); err != nil {
		return fmt.Errorf("create reading_cache: %w", err)
	}
	return nil
}

// Get implements [cache.Store].
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(ctx, queryGet, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres cache: get: %w", err)
	}
	return v, true, nil
}

// Put implements [cache.Store].
func (s *Store) Put(ctx context.Context, key, value string) error {
	if _, err := s.db.Exec(ctx, queryPut, key, value); err != nil {
		return fmt.Errorf("postgres cache: put: %w", err)
	}
	return nil
}

// Delete implements [cache.Store].
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, queryDelete, key); err != nil {
		return fmt.Errorf("postgres cache: delete: %w", err)
	}
	return nil
}

// Ping implements [cache.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the connection pool when the store owns it.
func (s *Store) Close() {
	s.close()
}
