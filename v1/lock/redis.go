package lock

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	coalerrors "github.com/mirkobrombin/go-coalesce/v1/errors"
)

var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// redisConn is the command surface needed by the locker. Both pooled clients
// and checked-out *redis.Conn values satisfy it.
type redisConn interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis implements Locker using a Redis backend.
type Redis struct {
	client redis.UniversalClient
	opts   options
}

// NewRedis returns a Redis locker using the provided client.
func NewRedis(client redis.UniversalClient, opts ...Option) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Redis{client: client, opts: newOptions(opts)}, nil
}

// Acquire implements Locker.Acquire with SET NX and a millisecond expiry.
func (r *Redis) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	var ok bool
	err := r.withConn(ctx, func(ctx context.Context, conn redisConn) error {
		var err error
		ok, err = conn.SetNX(ctx, key, token, ttl).Result()
		return err
	})
	if err != nil {
		return false, coalerrors.FromRedis(err)
	}
	return ok, nil
}

// Release implements Locker.Release. The comparison and the delete run as one
// server-side script so an expired lock re-acquired by someone else is never
// removed.
func (r *Redis) Release(ctx context.Context, key, token string) bool {
	var n int64
	err := r.withConn(ctx, func(ctx context.Context, conn redisConn) error {
		var err error
		n, err = delScript.Run(ctx, conn, []string{key}, token).Int64()
		return err
	})
	if err != nil {
		r.opts.logger.Warn("coalesce: lock release failed", "key", key, "error", coalerrors.FromRedis(err))
		return false
	}
	return n == 1
}

// withConn runs fn on a connection checked out from the pool for the duration
// of the call when the client is a single-node pooled client. The connection
// goes back to the pool on every return path.
func (r *Redis) withConn(ctx context.Context, fn func(context.Context, redisConn) error) error {
	if r.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.timeout)
		defer cancel()
	}
	if c, ok := r.client.(*redis.Client); ok && r.opts.scoped {
		conn := c.Conn()
		defer conn.Close()
		return fn(ctx, conn)
	}
	return fn(ctx, r.client)
}
