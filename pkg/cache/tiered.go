package cache

import (
	"context"
	"errors"
	"log/slog"
)

// Tiered layers a fast front store over a persistent back store. Reads check
// the front first and populate it from the back on a hit. Writes go to the
// back first and then to the front, so the back store remains the source of
// truth.
type Tiered struct {
	front Store
	back  Store
}

var (
	_ Store  = (*Tiered)(nil)
	_ Pinger = (*Tiered)(nil)
)

// NewTiered returns a [Tiered] store. Both stores are required.
func NewTiered(front, back Store) *Tiered {
	return &Tiered{front: front, back: back}
}

// Get implements [Store].
func (t *Tiered) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := t.front.Get(ctx, key); err == nil && ok {
		return v, true, nil
	} else if err != nil {
		slog.Warn("cache: front store get failed", "key", key, "err", err)
	}

	v, ok, err := t.back.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := t.front.Put(ctx, key, v); err != nil {
		slog.Warn("cache: front store fill failed", "key", key, "err", err)
	}
	return v, true, nil
}

// Put implements [Store].
func (t *Tiered) Put(ctx context.Context, key, value string) error {
	if err := t.back.Put(ctx, key, value); err != nil {
		return err
	}
	if err := t.front.Put(ctx, key, value); err != nil {
		slog.Warn("cache: front store put failed", "key", key, "err", err)
	}
	return nil
}

// Delete implements [Store]. The key is removed from both stores.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	return errors.Join(t.back.Delete(ctx, key), t.front.Delete(ctx, key))
}

// Ping checks the back store when it supports it.
func (t *Tiered) Ping(ctx context.Context) error {
	if p, ok := t.back.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
