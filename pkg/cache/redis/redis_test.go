package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), opts...)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	if _, ok, err := s.Get(ctx, "日本"); err != nil || ok {
		t.Fatalf("Get on empty = ok %v, err %v; want miss", ok, err)
	}
	if err := s.Put(ctx, "日本", "<ruby>日本<rt>にほん</rt></ruby>"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := s.Get(ctx, "日本")
	if err != nil || !ok || v != "<ruby>日本<rt>にほん</rt></ruby>" {
		t.Errorf("Get = (%q, %v, %v)", v, ok, err)
	}

	got, err := mr.Get(defaultPrefix + "日本")
	if err != nil {
		t.Fatalf("miniredis Get: %v", err)
	}
	if got != v {
		t.Errorf("raw value = %q, want %q", got, v)
	}
	if ttl := mr.TTL(defaultPrefix + "日本"); ttl != 0 {
		t.Errorf("TTL = %v, want no expiry", ttl)
	}
}

func TestStore_Prefix(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, WithPrefix("test:"))

	if err := s.Put(ctx, "猫", "x"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mr.Exists("test:猫") {
		t.Error("key not stored under custom prefix")
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.Put(ctx, "猫", "x")
	if err := s.Delete(ctx, "猫"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "猫"); ok {
		t.Error("Get after Delete = hit, want miss")
	}
}

func TestStore_ErrorWhenServerDown(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	mr.Close()

	if _, _, err := s.Get(ctx, "猫"); err == nil {
		t.Error("Get err = nil, want connection error")
	}
	if err := s.Ping(ctx); err == nil {
		t.Error("Ping err = nil, want connection error")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New("not a url"); err == nil {
		t.Error("New err = nil, want parse error")
	}
}
