// Package redis provides a Redis-backed [cache.Store] using
// github.com/redis/go-redis/v9. Keys are namespaced with a configurable prefix
// and stored without expiry.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/kotoba/pkg/cache"
)

const defaultPrefix = "kotoba:reading:"

var (
	_ cache.Store  = (*Store)(nil)
	_ cache.Pinger = (*Store)(nil)
)

// Option configures a [Store].
type Option func(*Store)

// WithPrefix sets the key prefix. Defaults to "kotoba:reading:".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store keeps readings as plain Redis strings.
type Store struct {
	client *goredis.Client
	prefix string
}

// New connects using a redis:// URL.
func New(url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis cache: parse url: %w", err)
	}
	return NewWithClient(goredis.NewClient(o), opts...), nil
}

// NewWithClient wraps an existing client. Close closes it.
func NewWithClient(client *goredis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get implements [cache.Store].
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis cache: get: %w", err)
	}
	return v, true, nil
}

// Put implements [cache.Store].
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis cache: put: %w", err)
	}
	return nil
}

// Delete implements [cache.Store].
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis cache: delete: %w", err)
	}
	return nil
}

// Ping implements [cache.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
