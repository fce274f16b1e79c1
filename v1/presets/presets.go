package presets

import (
	"time"

	nats "github.com/nats-io/nats.go"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-coalesce/v1/adapter"
	"github.com/mirkobrombin/go-coalesce/v1/core"
	"github.com/mirkobrombin/go-coalesce/v1/lock"
)

// DefaultNATSBucket is the JetStream KV bucket holding NATS locks.
const DefaultNATSBucket = "coalesce_locks"

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Client is used as is when set; the fields above are ignored.
	Client redis.UniversalClient
	// Codec encodes values; JSON when nil.
	Codec adapter.Codec
	// Timeout bounds every store and lock call; zero keeps the adapter default.
	Timeout time.Duration
}

func (o RedisOptions) client() redis.UniversalClient {
	if o.Client != nil {
		return o.Client
	}
	return redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
}

// NewRedis creates a Coalescer that caches in Redis and locks on the same
// connection. Use it when several processes share one Redis.
func NewRedis[T any](opts RedisOptions, copts ...core.Option) (*core.Coalescer[T], error) {
	var sopts []adapter.Option
	if opts.Codec != nil {
		sopts = append(sopts, adapter.WithCodec(opts.Codec))
	}
	if opts.Timeout > 0 {
		sopts = append(sopts, adapter.WithTimeout(opts.Timeout),
			adapter.WithLockOptions(lock.WithTimeout(opts.Timeout)))
	}
	store := adapter.NewRedisStore[T](opts.client(), sopts...)
	return core.New[T](store, copts...)
}

// NewInMemory creates a Coalescer that runs entirely in-process with no
// external dependencies. Useful for local development or tests.
func NewInMemory[T any](copts ...core.Option) (*core.Coalescer[T], error) {
	return core.New[T](adapter.NewInMemoryStore[T](), copts...)
}

// NewRistretto creates a single-process Coalescer backed by a ristretto cache.
// The caller owns the returned store and should Close it.
func NewRistretto[T any](cfg adapter.RistrettoConfig, copts ...core.Option) (*core.Coalescer[T], *adapter.RistrettoStore[T], error) {
	store, err := adapter.NewRistrettoStore[T](cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := core.New[T](store, copts...)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return c, store, nil
}

// NATSOptions configures the JetStream KV lock.
type NATSOptions struct {
	Conn *nats.Conn
	// Bucket defaults to DefaultNATSBucket and is created when missing.
	Bucket string
	// LockOptions tune the NATS locker.
	LockOptions []lock.Option
}

// NewNATS creates a Coalescer over store that coordinates through a NATS
// JetStream KV bucket instead of the store.
func NewNATS[T any](store adapter.Store[T], opts NATSOptions, copts ...core.Option) (*core.Coalescer[T], error) {
	if opts.Conn == nil {
		return nil, lock.ErrNilClient
	}
	bucket := opts.Bucket
	if bucket == "" {
		bucket = DefaultNATSBucket
	}
	js, err := opts.Conn.JetStream()
	if err != nil {
		return nil, err
	}
	kv, err := lock.OpenNATSBucket(js, bucket)
	if err != nil {
		return nil, err
	}
	l, err := lock.NewNATS(kv, opts.LockOptions...)
	if err != nil {
		return nil, err
	}
	return core.New[T](store, append([]core.Option{core.WithLocker(l)}, copts...)...)
}
