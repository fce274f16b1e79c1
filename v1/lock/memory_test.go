package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

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

func TestMemoryAcquireRelease(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	ok, err := l.Acquire(ctx, "k", "a", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: %v ok %v", err, ok)
	}
	if ok, err := l.Acquire(ctx, "k", "b", time.Second); err != nil || ok {
		t.Fatalf("expected lock held, got ok %v err %v", ok, err)
	}
	if !l.Release(ctx, "k", "a") {
		t.Fatal("release should report true")
	}
	if ok, err := l.Acquire(ctx, "k", "b", time.Second); err != nil || !ok {
		t.Fatalf("expected lock re-acquired, ok %v err %v", ok, err)
	}
}

func TestMemoryTTLExpires(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()
	if ok, _ := l.Acquire(ctx, "k", "a", 100*time.Millisecond); !ok {
		t.Fatal("first acquire should succeed")
	}
	clock.Advance(99 * time.Millisecond)
	if ok, _ := l.Acquire(ctx, "k", "b", time.Second); ok {
		t.Fatal("lock should still be held before ttl elapses")
	}
	clock.Advance(time.Millisecond)
	if ok, _ := l.Acquire(ctx, "k", "b", time.Second); !ok {
		t.Fatal("lock should be acquirable once ttl elapsed")
	}
}

func TestMemoryTTLExpiresRealClock(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	if ok, err := l.Acquire(ctx, "k", "a", 10*time.Millisecond); err != nil || !ok {
		t.Fatalf("acquire: %v ok %v", err, ok)
	}
	time.Sleep(20 * time.Millisecond)
	if ok, err := l.Acquire(ctx, "k", "b", time.Second); err != nil || !ok {
		t.Fatalf("lock should expire, ok %v err %v", ok, err)
	}
}

// The in-process locker does not verify ownership on release.
func TestMemoryReleaseIgnoresToken(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	_, _ = l.Acquire(ctx, "k", "owner", time.Minute)
	if !l.Release(ctx, "k", "intruder") {
		t.Fatal("release should report true")
	}
	if l.Held("k") {
		t.Fatal("release with a foreign token removes the entry")
	}
}

func TestMemoryInvalidTTL(t *testing.T) {
	l := NewMemory()
	if _, err := l.Acquire(context.Background(), "k", "a", 0); err != ErrInvalidTTL {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	l := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok, err := l.Acquire(ctx, "k", "a", time.Second); err == nil || ok {
		t.Fatalf("expected context error, ok %v err %v", ok, err)
	}
}

func TestMemoryConcurrentAcquireSingleWinner(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Acquire(ctx, "k", "t", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := winners.Load(); n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}
