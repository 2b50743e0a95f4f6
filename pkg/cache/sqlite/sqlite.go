// Package sqlite provides a single-file [cache.Store] for local deployments,
// backed by github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/kotoba/pkg/cache"
)

const schema = `
CREATE TABLE IF NOT EXISTS reading_cache (
    original_text TEXT PRIMARY KEY,
    annotation    TEXT NOT NULL,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

var (
	_ cache.Store  = (*Store)(nil)
	_ cache.Pinger = (*Store)(nil)
)

// Store keeps readings in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache: open %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serialises
	// writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite cache: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements [cache.Store].
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT annotation FROM reading_cache WHERE original_text = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite cache: get: %w", err)
	}
	return v, true, nil
}

// Put implements [cache.Store].
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reading_cache (original_text, annotation) VALUES (?, ?)
ON CONFLICT(original_text) DO UPDATE SET annotation = excluded.annotation, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("sqlite cache: put: %w", err)
	}
	return nil
}

// Delete implements [cache.Store].
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reading_cache WHERE original_text = ?`, key); err != nil {
		return fmt.Errorf("sqlite cache: delete: %w", err)
	}
	return nil
}

// Ping implements [cache.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
