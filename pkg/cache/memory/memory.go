// Package memory provides an in-process LRU implementation of [cache.Store].
//
// With a non-positive size the store is unbounded, which matches the
// never-expiring semantics of the reading cache. A bounded store is intended
// as the front tier of a [cache.Tiered].
package memory

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MrWong99/kotoba/pkg/cache"
)

var _ cache.Store = (*Store)(nil)

// Store is a concurrency-safe in-memory cache.
type Store struct {
	lru *lru.Cache[string, string]

	// unbounded is used when no size limit is configured.
	mu        sync.RWMutex
	unbounded map[string]string
}

// New returns a Store holding at most size entries. A size <= 0 disables
// eviction.
func New(size int) (*Store, error) {
	if size <= 0 {
		return &Store{unbounded: make(map[string]string)}, nil
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Store{lru: c}, nil
}

// Get implements [cache.Store].
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if s.lru != nil {
		v, ok := s.lru.Get(key)
		return v, ok, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.unbounded[key]
	return v, ok, nil
}

// Put implements [cache.Store].
func (s *Store) Put(_ context.Context, key, value string) error {
	if s.lru != nil {
		s.lru.Add(key, value)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unbounded[key] = value
	return nil
}

// Delete implements [cache.Store].
func (s *Store) Delete(_ context.Context, key string) error {
	if s.lru != nil {
		s.lru.Remove(key)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unbounded, key)
	return nil
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	if s.lru != nil {
		return s.lru.Len()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.unbounded)
}
