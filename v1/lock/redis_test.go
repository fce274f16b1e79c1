package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	coalerrors "github.com/mirkobrombin/go-coalesce/v1/errors"
)

func newRedisLocker(t *testing.T, opts ...Option) (*Redis, *miniredis.Miniredis, *redis.Client, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l, err := NewRedis(client, opts...)
	if err != nil {
		t.Fatalf("new redis locker: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return l, mr, client, context.Background()
}

func TestRedisAcquireRelease(t *testing.T) {
	l, mr, _, ctx := newRedisLocker(t)

	ok, err := l.Acquire(ctx, "k", "token", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: %v ok %v", err, ok)
	}
	if got, _ := mr.Get("k"); got != "token" {
		t.Fatalf("expected token stored, got %q", got)
	}
	if ok, err := l.Acquire(ctx, "k", "other", time.Second); err != nil || ok {
		t.Fatalf("expected lock held, ok %v err %v", ok, err)
	}
	if !l.Release(ctx, "k", "token") {
		t.Fatal("release by owner should succeed")
	}
	if mr.Exists("k") {
		t.Fatal("lock key should be deleted")
	}
}

func TestRedisReleaseWrongTokenKeepsLock(t *testing.T) {
	l, mr, _, ctx := newRedisLocker(t)

	if ok, _ := l.Acquire(ctx, "k", "owner", time.Second); !ok {
		t.Fatal("acquire should succeed")
	}
	if l.Release(ctx, "k", "intruder") {
		t.Fatal("release with foreign token must report false")
	}
	if got, _ := mr.Get("k"); got != "owner" {
		t.Fatalf("lock must survive a foreign release, got %q", got)
	}
	if !l.Release(ctx, "k", "owner") {
		t.Fatal("owner release should still succeed")
	}
}

func TestRedisLockExpires(t *testing.T) {
	l, mr, _, ctx := newRedisLocker(t)

	if ok, _ := l.Acquire(ctx, "k", "a", 250*time.Millisecond); !ok {
		t.Fatal("acquire should succeed")
	}
	if ttl := mr.TTL("k"); ttl <= 0 || ttl > 250*time.Millisecond {
		t.Fatalf("expected millisecond expiry, got %v", ttl)
	}
	mr.FastForward(250 * time.Millisecond)
	if ok, err := l.Acquire(ctx, "k", "b", time.Second); err != nil || !ok {
		t.Fatalf("expected expired lock to be acquirable, ok %v err %v", ok, err)
	}
	// the stale owner cannot remove the new holder's lock
	if l.Release(ctx, "k", "a") {
		t.Fatal("expired owner must not release the new lock")
	}
}

func TestRedisReleaseSwallowsBackendErrors(t *testing.T) {
	l, mr, _, ctx := newRedisLocker(t)
	if ok, _ := l.Acquire(ctx, "k", "a", time.Second); !ok {
		t.Fatal("acquire should succeed")
	}
	mr.Close()
	if l.Release(ctx, "k", "a") {
		t.Fatal("release against a dead backend must report false")
	}
}

func TestRedisAcquireErrors(t *testing.T) {
	t.Run("backend down", func(t *testing.T) {
		l, mr, _, ctx := newRedisLocker(t)
		mr.Close()
		if ok, err := l.Acquire(ctx, "k", "a", time.Second); err == nil || ok {
			t.Fatalf("expected error, ok %v err %v", ok, err)
		}
	})
	t.Run("closed client", func(t *testing.T) {
		l, _, client, ctx := newRedisLocker(t, WithScopedConn(false))
		_ = client.Close()
		if _, err := l.Acquire(ctx, "k", "a", time.Second); !errors.Is(err, coalerrors.ErrConnectionClosed) {
			t.Fatalf("expected connection closed, got %v", err)
		}
	})
	t.Run("invalid ttl", func(t *testing.T) {
		l, _, _, ctx := newRedisLocker(t)
		if _, err := l.Acquire(ctx, "k", "a", 0); !errors.Is(err, ErrInvalidTTL) {
			t.Fatalf("expected ErrInvalidTTL, got %v", err)
		}
	})
}

func TestRedisScopedConnReturnsToPool(t *testing.T) {
	l, _, client, ctx := newRedisLocker(t)
	for i := 0; i < 10; i++ {
		if ok, err := l.Acquire(ctx, "k", "a", time.Second); err != nil || !ok {
			t.Fatalf("acquire %d: %v ok %v", i, err, ok)
		}
		if !l.Release(ctx, "k", "a") {
			t.Fatalf("release %d failed", i)
		}
	}
	st := client.PoolStats()
	if st.TotalConns != st.IdleConns {
		t.Fatalf("checked-out connections leaked: total %d idle %d", st.TotalConns, st.IdleConns)
	}
}

func TestRedisUnscopedClient(t *testing.T) {
	l, _, _, ctx := newRedisLocker(t, WithScopedConn(false), WithTimeout(time.Second))
	if ok, err := l.Acquire(ctx, "k", "a", time.Second); err != nil || !ok {
		t.Fatalf("acquire: %v ok %v", err, ok)
	}
	if !l.Release(ctx, "k", "a") {
		t.Fatal("release should succeed")
	}
}

func TestNewRedisNilClient(t *testing.T) {
	if _, err := NewRedis(nil); !errors.Is(err, ErrNilClient) {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}

type redisBackedStore struct{ client redis.UniversalClient }

func (s redisBackedStore) Locker() (Locker, error) { return NewRedis(s.client) }

func TestFromStore(t *testing.T) {
	_, _, client, _ := newRedisLocker(t)
	l, err := FromStore(redisBackedStore{client: client})
	if err != nil {
		t.Fatalf("FromStore: %v", err)
	}
	if _, ok := l.(*Redis); !ok {
		t.Fatalf("expected *Redis, got %T", l)
	}

	if _, err := FromStore(struct{}{}); !errors.Is(err, ErrNoLockBackend) {
		t.Fatalf("expected ErrNoLockBackend, got %v", err)
	}
	if _, err := FromStore(redisBackedStore{}); !errors.Is(err, ErrNoLockBackend) {
		t.Fatalf("expected ErrNoLockBackend for nil client, got %v", err)
	}
}
