package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/kotoba/pkg/cache"
	"github.com/MrWong99/kotoba/pkg/cache/memory"
)

// failingStore returns err from every operation.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingStore) Put(context.Context, string, string) error         { return f.err }
func (f failingStore) Delete(context.Context, string) error              { return f.err }

func newMem(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(0)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	return s
}

func TestTiered_FillsFrontFromBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	front, back := newMem(t), newMem(t)
	_ = back.Put(ctx, "猫", "<ruby>猫<rt>ねこ</rt></ruby>")

	tc := cache.NewTiered(front, back)
	v, ok, err := tc.Get(ctx, "猫")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v; want hit", ok, err)
	}
	if v != "<ruby>猫<rt>ねこ</rt></ruby>" {
		t.Errorf("value = %q", v)
	}
	if _, ok, _ := front.Get(ctx, "猫"); !ok {
		t.Error("front store was not filled on back hit")
	}
}

func TestTiered_PutWritesBoth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	front, back := newMem(t), newMem(t)
	tc := cache.NewTiered(front, back)
	if err := tc.Put(ctx, "犬", "x"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if front.Len() != 1 || back.Len() != 1 {
		t.Errorf("front.Len = %d, back.Len = %d; want 1, 1", front.Len(), back.Len())
	}

	if err := tc.Delete(ctx, "犬"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if front.Len() != 0 || back.Len() != 0 {
		t.Errorf("after Delete front.Len = %d, back.Len = %d; want 0, 0", front.Len(), back.Len())
	}
}

func TestTiered_BackErrorPropagates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	boom := errors.New("connection refused")
	tc := cache.NewTiered(newMem(t), failingStore{err: boom})

	if _, _, err := tc.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Get err = %v, want %v", err, boom)
	}
	if err := tc.Put(ctx, "k", "v"); !errors.Is(err, boom) {
		t.Errorf("Put err = %v, want %v", err, boom)
	}
}

func TestTiered_FrontErrorIsTolerated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	back := newMem(t)
	_ = back.Put(ctx, "k", "v")
	tc := cache.NewTiered(failingStore{err: errors.New("front down")}, back)

	v, ok, err := tc.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("Get = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}
	if err := tc.Put(ctx, "k2", "v2"); err != nil {
		t.Errorf("Put err = %v, want nil", err)
	}
}
