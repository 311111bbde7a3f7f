package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestMemoryRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", payload{Name: "Gold", Value: 1.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Gold" || got.Value != 1.5 {
		t.Fatalf("unexpected value %+v", got)
	}

	var s string
	_ = mc.Set(ctx, "s", "raw", 0)
	if err := mc.Get(ctx, "s", &s); err != nil || s != "raw" {
		t.Fatalf("string get: %q %v", s, err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	_ = mc.Set(ctx, "k", "v", time.Second)

	now = now.Add(2 * time.Second)
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	_ = mc.Set(ctx, "a", "1", time.Hour)
	_ = mc.Set(ctx, "b", "2", time.Hour)
	var s string
	_ = mc.Get(ctx, "a", &s)
	_ = mc.Set(ctx, "c", "3", time.Hour)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("expected b evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("expected a and c kept")
	}
}

func TestMemoryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if ok, _ := mc.TryLock(ctx, "refresh", time.Minute); !ok {
		t.Fatalf("expected first lock to succeed")
	}
	if ok, _ := mc.TryLock(ctx, "refresh", time.Minute); ok {
		t.Fatalf("expected second lock to fail")
	}
	_ = mc.Unlock(ctx, "refresh")
	if ok, _ := mc.TryLock(ctx, "refresh", time.Minute); !ok {
		t.Fatalf("expected lock after unlock")
	}
}

func TestLayeredWithoutRedis(t *testing.T) {
	lc := NewLayeredCache(nil, WithLayeredMemorySize(8))
	defer lc.Close()
	ctx := context.Background()

	if err := lc.Set(ctx, "k", []int{1, 2, 3}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got []int
	if err := lc.Get(ctx, "k", &got); err != nil || len(got) != 3 {
		t.Fatalf("get: %v %v", got, err)
	}
	_ = lc.Delete(ctx, "k")
	if err := lc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}
