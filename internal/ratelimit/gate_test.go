package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGate(store Store) (*Gate, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewGate(store, 10*time.Second, 5, WithClock(clock.Now)), clock
}

func TestSixthMessageTripsOnce(t *testing.T) {
	g, clock := newTestGate(NewMemoryStore())
	ctx := t.Context()

	for i := 1; i <= 5; i++ {
		v := g.CheckAndRecord(ctx, "telegram:1")
		if v.Tripped {
			t.Fatalf("message %d tripped early: %+v", i, v)
		}
		clock.Advance(time.Second)
	}

	sixth := g.CheckAndRecord(ctx, "telegram:1")
	if !sixth.Tripped || !sixth.FirstTrip {
		t.Fatalf("6th message: want first trip, got %+v", sixth)
	}

	seventh := g.CheckAndRecord(ctx, "telegram:1")
	if !seventh.Tripped || seventh.FirstTrip {
		t.Fatalf("7th message: want silent trip, got %+v", seventh)
	}
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	store := NewMemoryStore()
	g, clock := newTestGate(store)

	for i := 0; i < 50; i++ {
		v := g.CheckAndRecord(t.Context(), "k")
		if n := store.Len("k"); n > g.Threshold()+1 {
			t.Fatalf("window length %d exceeds cap after %d calls", n, i+1)
		}
		if v.Tripped != (v.Count > g.Threshold()) {
			t.Fatalf("tripped=%v but count=%d", v.Tripped, v.Count)
		}
		clock.Advance(100 * time.Millisecond)
	}
}

func TestWindowAgesOut(t *testing.T) {
	g, clock := newTestGate(NewMemoryStore())
	ctx := t.Context()

	for i := 0; i < 7; i++ {
		g.CheckAndRecord(ctx, "k")
	}
	clock.Advance(11 * time.Second)

	v := g.CheckAndRecord(ctx, "k")
	if v.Tripped || v.Count != 1 {
		t.Fatalf("after window: got %+v, want fresh window", v)
	}

	// tripping again after recovery warns again
	for i := 0; i < 4; i++ {
		g.CheckAndRecord(ctx, "k")
	}
	if v := g.CheckAndRecord(ctx, "k"); !v.FirstTrip {
		t.Fatalf("second trip after recovery: got %+v", v)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	g, _ := newTestGate(NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("chat:%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if v := g.CheckAndRecord(context.Background(), key); v.Tripped {
					t.Errorf("%s tripped at %d", key, j)
				}
			}
		}()
	}
	wg.Wait()
}

type failingStore struct{}

func (failingStore) Record(context.Context, string, time.Time, time.Duration, int) (int, int, error) {
	return 0, 0, errors.New("down")
}

func TestStoreErrorDoesNotTrip(t *testing.T) {
	g := NewGate(failingStore{}, 0, 0)
	if v := g.CheckAndRecord(t.Context(), "k"); v.Tripped {
		t.Fatalf("got %+v, want not tripped", v)
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "molebot:test:"), client
}

func TestRedisStore(t *testing.T) {
	store, client := newRedisStore(t)
	g, clock := newTestGate(store)
	ctx := t.Context()

	var last Verdict
	firsts := 0
	for i := 0; i < 7; i++ {
		last = g.CheckAndRecord(ctx, "k")
		if last.FirstTrip {
			firsts++
		}
		clock.Advance(time.Millisecond)
	}
	if !last.Tripped || firsts != 1 || last.Count != 6 {
		t.Fatalf("got last=%+v firsts=%d", last, firsts)
	}

	n, err := client.ZCard(ctx, "molebot:test:k").Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(g.Threshold()+1) {
		t.Errorf("retained %d timestamps, want %d", n, g.Threshold()+1)
	}
	if ttl := client.PTTL(ctx, "molebot:test:k").Val(); ttl <= 0 {
		t.Errorf("window key has no expiry: %v", ttl)
	}
}

func TestRedisStoreWindowExpires(t *testing.T) {
	store, _ := newRedisStore(t)
	g, clock := newTestGate(store)
	ctx := t.Context()

	for i := 0; i < 6; i++ {
		g.CheckAndRecord(ctx, "k")
	}
	clock.Advance(11 * time.Second)
	if v := g.CheckAndRecord(ctx, "k"); v.Tripped || v.Count != 1 {
		t.Fatalf("after window: %+v", v)
	}
	if v := g.CheckAndRecord(ctx, "other"); v.Tripped {
		t.Fatalf("independent key tripped: %+v", v)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	defer client.Close()
	srv.Close()

	if _, _, err := NewRedisStore(client, "").Record(t.Context(), "k", time.Now(), time.Second, 6); err == nil {
		t.Fatal("expected error from closed server")
	}
}
