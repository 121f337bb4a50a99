package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

type countObserver struct{ hits, misses int }

func (o *countObserver) CacheHit()  { o.hits++ }
func (o *countObserver) CacheMiss() { o.misses++ }

func TestCacheExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	obs := &countObserver{}
	c := New(NewMemoryStore(), time.Minute, WithClock(clock.Now), WithObserver(obs))

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("empty cache returned a value")
	}
	if err := c.Set(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clock.Advance(59 * time.Second)
	v, ok := c.Get(ctx, "k")
	if !ok || string(v) != `{"a":1}` {
		t.Fatalf("expected fresh hit, got %q %v", v, ok)
	}

	clock.Advance(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("entry should expire exactly at TTL")
	}

	e, ok := c.Stale(ctx, "k")
	if !ok || string(e.Value) != `{"a":1}` {
		t.Fatalf("stale value should remain available, got %+v %v", e, ok)
	}
	if obs.hits != 1 || obs.misses != 2 {
		t.Fatalf("observer hits=%d misses=%d", obs.hits, obs.misses)
	}
}

func TestCacheClearDropsStale(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), time.Minute)
	_ = c.Set(ctx, "a", []byte("1"))
	_ = c.Set(ctx, "b", []byte("2"))
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Stale(ctx, "a"); ok {
		t.Fatalf("Clear must drop stale entries too")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatalf("Clear must drop fresh entries")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("down")
}
func (failingStore) Set(context.Context, string, Entry) error { return errors.New("down") }
func (failingStore) Clear(context.Context) error              { return errors.New("down") }

func TestStoreErrorsAreMisses(t *testing.T) {
	obs := &countObserver{}
	c := New(failingStore{}, time.Minute, WithObserver(obs))
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatalf("store error should be a miss")
	}
	if _, ok := c.Stale(context.Background(), "k"); ok {
		t.Fatalf("store error should not produce a stale value")
	}
	if obs.misses != 1 {
		t.Fatalf("misses = %d", obs.misses)
	}
}

func TestKeysCanonicalization(t *testing.T) {
	if DayKey(0) == DayKey(1) {
		t.Fatalf("different days must not share a key")
	}
	if SearchKey("all", "BCS-1G") != SearchKey(" ALL ", "bcs-1g ") {
		t.Fatalf("case and space must not change the search key")
	}
	if SearchKey("all", "BCS-1G") == SearchKey("0", "BCS-1G") {
		t.Fatalf("selector must be part of the search key")
	}
}

// TestRedisStore runs against a real server when CLASSFINDER_TEST_REDIS is
// set, e.g. CLASSFINDER_TEST_REDIS=127.0.0.1:6379.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CLASSFINDER_TEST_REDIS")
	if addr == "" {
		t.Skip("CLASSFINDER_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisStore(client, "classfinder-test:", time.Hour)
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	c := New(store, time.Minute)
	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q %v", v, ok)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Stale(ctx, "k"); ok {
		t.Fatalf("value survived Clear")
	}
}
