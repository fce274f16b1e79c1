package adapter

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	coalerrors "github.com/mirkobrombin/go-coalesce/v1/errors"
	"github.com/mirkobrombin/go-coalesce/v1/lock"
)

const defaultRedisOpTimeout = 5 * time.Second

// RedisStore implements Store using a Redis backend. Entries are written as
// codec-encoded envelopes and expire through Redis' own TTL.
//
// RedisStore implements lock.Provider: a coalescer built on it locks through
// the same Redis deployment by default.
type RedisStore[T any] struct {
	client redis.UniversalClient
	opts   storeOptions
}

var _ lock.Provider = (*RedisStore[int])(nil)

// WithLockOptions sets the options passed to the locker derived by Locker.
func WithLockOptions(opts ...lock.Option) Option {
	return func(o *storeOptions) { o.lockOpts = append(o.lockOpts, opts...) }
}

// NewRedisStore returns a new RedisStore using the provided Redis client.
func NewRedisStore[T any](client redis.UniversalClient, opts ...Option) *RedisStore[T] {
	return &RedisStore[T]{client: client, opts: newStoreOptions(opts)}
}

// Locker implements lock.Provider.
func (s *RedisStore[T]) Locker() (lock.Locker, error) {
	l, err := lock.NewRedis(s.client, s.opts.lockOpts...)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Read implements Store.Read.
func (s *RedisStore[T]) Read(ctx context.Context, key string) (Entry[T], bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry[T]{}, false, coalerrors.FromRedis(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()
	data, err := s.client.Get(cctx, key).Bytes()
	if err == redis.Nil {
		return Entry[T]{}, false, nil
	}
	if err != nil {
		return Entry[T]{}, false, coalerrors.FromRedis(err)
	}
	return decodeEntry[T](s.opts.codec, data, s.opts.now())
}

// Write implements Store.Write.
func (s *RedisStore[T]) Write(ctx context.Context, key string, e Entry[T], ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return coalerrors.FromRedis(err)
	}
	data, err := encodeEntry(s.opts.codec, e, time.Time{})
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()
	return coalerrors.FromRedis(s.client.Set(cctx, key, data, ttl).Err())
}

// Delete implements Deleter.
func (s *RedisStore[T]) Delete(ctx context.Context, key string) error {
	cctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()
	return coalerrors.FromRedis(s.client.Del(cctx, key).Err())
}
