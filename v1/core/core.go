package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-coalesce/v1/adapter"
	"github.com/mirkobrombin/go-coalesce/v1/lock"
	"github.com/mirkobrombin/go-coalesce/v1/metrics"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-coalesce/v1/core")

var (
	// ErrNilStore is returned by New when no store is given.
	ErrNilStore = errors.New("coalesce: store is required")
	// ErrNilProducer is returned by Fetch when no producer is given.
	ErrNilProducer = errors.New("coalesce: producer is required")
	// ErrInvalidTTL is returned by Fetch for a non-positive ttl.
	ErrInvalidTTL = errors.New("coalesce: ttl must be positive")
	// ErrNotSupported is returned by Invalidate when the store cannot delete.
	ErrNotSupported = errors.New("coalesce: store does not support delete")
)

// Producer computes the value of a key. Returning ok=false means the key has
// no value; with WithCacheNil that result is cached as well.
type Producer[T any] func(ctx context.Context) (v T, ok bool, err error)

// Value adapts a function that always yields a value into a Producer.
func Value[T any](fn func(ctx context.Context) (T, error)) Producer[T] {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) (T, bool, error) {
		v, err := fn(ctx)
		return v, err == nil, err
	}
}

// Coalescer collapses concurrent misses of the same key into a single
// producer run guarded by a lock.
type Coalescer[T any] struct {
	store    adapter.Store[T]
	locker   lock.Locker
	logger   *slog.Logger
	tracing  bool
	defaults []FetchOption
	token    func() string
}

// New creates a Coalescer reading and writing through store.
//
// The lock backend is chosen in order: WithLocker, the store's own locker when
// it implements lock.Provider, an in-process lock.Memory. An error from the
// store's locker is returned as is.
func New[T any](store adapter.Store[T], opts ...Option) (*Coalescer[T], error) {
	if store == nil {
		return nil, ErrNilStore
	}
	cfg := config{logger: slog.Default(), token: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.locker == nil {
		l, err := defaultLocker(store)
		if err != nil {
			return nil, err
		}
		cfg.locker = l
	}
	return &Coalescer[T]{
		store:    store,
		locker:   cfg.locker,
		logger:   cfg.logger,
		tracing:  cfg.tracing,
		defaults: cfg.defaults,
		token:    cfg.token,
	}, nil
}

func defaultLocker(store any) (lock.Locker, error) {
	if _, ok := store.(lock.Provider); ok {
		return lock.FromStore(store)
	}
	return lock.NewMemory(), nil
}

// Locker returns the lock backend used when a call does not override it.
func (c *Coalescer[T]) Locker() lock.Locker { return c.locker }

// Fetch returns the cached value of key, or computes it with fn while holding
// the key's lock and caches it for ttl.
//
// Callers that lose the lock poll the store for up to the wait timeout, try
// the lock once more and finally fall back to the stale copy if one is kept.
// When all of that fails Fetch reports no value with a nil error. A context
// cancelled while waiting ends the wait early and goes straight to the stale
// copy. An error is only returned for invalid arguments or a failing producer.
// A computed value is stored even when ctx ends while the producer runs.
func (c *Coalescer[T]) Fetch(ctx context.Context, key string, ttl time.Duration, fn Producer[T], opts ...FetchOption) (v T, ok bool, err error) {
	var zero T
	if fn == nil {
		return zero, false, ErrNilProducer
	}
	if ttl <= 0 {
		return zero, false, ErrInvalidTTL
	}
	fc := newFetchConfig(c.defaults, opts)
	if fc.locker == nil {
		fc.locker = c.locker
	}

	var span trace.Span
	if c.tracing {
		ctx, span = tracer.Start(ctx, "Coalescer.Fetch", trace.WithAttributes(attribute.String("coalesce.key", key)))
		defer span.End()
	}
	start := time.Now()

	// A panicking producer leaves outcome at error.
	outcome := metrics.OutcomeError
	defer func() {
		metrics.FetchCounter.WithLabelValues(outcome).Inc()
		metrics.FetchLatency.Observe(time.Since(start).Seconds())
		if c.tracing {
			span.SetAttributes(attribute.String("coalesce.outcome", outcome))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
	}()

	v, ok, outcome, err = c.fetch(ctx, key, ttl, fn, fc)
	return v, ok, err
}

func (c *Coalescer[T]) fetch(ctx context.Context, key string, ttl time.Duration, fn Producer[T], fc fetchConfig) (T, bool, string, error) {
	var zero T

	switch r := c.lookup(ctx, key, fc.cacheNil); r.Kind {
	case Hit:
		return r.Value, true, metrics.OutcomeHit, nil
	case NullHit:
		return zero, false, metrics.OutcomeNullHit, nil
	}

	lockKey := LockKey(key)
	token := c.token()
	if c.acquire(ctx, fc, lockKey, token) {
		return c.compute(ctx, key, ttl, fn, fc, lockKey, token)
	}

	r, abandoned := c.wait(ctx, key, fc)
	if r.Kind != Miss {
		return r.Value, r.Kind == Hit, metrics.OutcomeWaited, nil
	}

	if !abandoned && c.acquire(ctx, fc, lockKey, token) {
		return c.compute(ctx, key, ttl, fn, fc, lockKey, token)
	}

	if fc.staleTTL > 0 {
		if r := c.lookup(context.WithoutCancel(ctx), StaleKey(key), fc.cacheNil); r.Kind != Miss {
			c.logger.Debug("coalesce: serving stale value", "key", key)
			return r.Value, r.Kind == Hit, metrics.OutcomeStale, nil
		}
	}
	c.logger.Debug("coalesce: no value available", "key", key)
	return zero, false, metrics.OutcomeEmpty, nil
}

// lookup reads key from the store. Read failures degrade to a miss.
func (c *Coalescer[T]) lookup(ctx context.Context, key string, cacheNil bool) Result[T] {
	e, found, err := c.store.Read(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("coalesce: store read failed", "key", key, "error", err)
		}
		return Result[T]{Kind: Miss}
	}
	return classify(e, found, cacheNil)
}

func (c *Coalescer[T]) acquire(ctx context.Context, fc fetchConfig, lockKey, token string) bool {
	ok, err := fc.locker.Acquire(ctx, lockKey, token, fc.lockTTL)
	if err != nil {
		c.logger.Warn("coalesce: lock acquire failed", "key", lockKey, "error", err)
		return false
	}
	if !ok {
		metrics.LockContendedCounter.Inc()
	}
	return ok
}

// wait polls the store until the key appears or the wait timeout passes.
// It never takes the lock. abandoned reports that ctx ended the wait.
func (c *Coalescer[T]) wait(ctx context.Context, key string, fc fetchConfig) (r Result[T], abandoned bool) {
	deadline := time.Now().Add(fc.waitTimeout)
	for {
		if r := c.lookup(ctx, key, fc.cacheNil); r.Kind != Miss {
			return r, false
		}
		if !time.Now().Before(deadline) {
			return Result[T]{Kind: Miss}, false
		}
		t := time.NewTimer(fc.waitSleep)
		select {
		case <-ctx.Done():
			t.Stop()
			c.logger.Debug("coalesce: wait abandoned", "key", key, "error", ctx.Err())
			return Result[T]{Kind: Miss}, true
		case <-t.C:
		}
	}
}

// compute runs fn under the lock and stores its result. The lock is released
// on every exit path, including a panicking producer.
func (c *Coalescer[T]) compute(ctx context.Context, key string, ttl time.Duration, fn Producer[T], fc fetchConfig, lockKey, token string) (T, bool, string, error) {
	defer func() {
		if !fc.locker.Release(context.WithoutCancel(ctx), lockKey, token) {
			metrics.LockReleaseFailedCounter.Inc()
			c.logger.Debug("coalesce: lock not released", "key", lockKey)
		}
	}()

	var zero T
	metrics.ProducerCounter.Inc()
	v, ok, err := fn(ctx)
	if err != nil {
		metrics.ProducerErrorCounter.Inc()
		return zero, false, metrics.OutcomeError, err
	}

	var e adapter.Entry[T]
	switch {
	case ok:
		e = adapter.ValueEntry(v)
	case fc.cacheNil:
		e = adapter.NullEntry[T]()
	default:
		return zero, false, metrics.OutcomeComputed, nil
	}

	wctx := context.WithoutCancel(ctx)
	c.write(wctx, key, e, ttl)
	if fc.staleTTL > 0 {
		c.write(wctx, StaleKey(key), e, ttl+fc.staleTTL)
	}
	if !ok {
		return zero, false, metrics.OutcomeComputed, nil
	}
	return v, true, metrics.OutcomeComputed, nil
}

func (c *Coalescer[T]) write(ctx context.Context, key string, e adapter.Entry[T], ttl time.Duration) {
	if err := c.store.Write(ctx, key, e, ttl); err != nil {
		c.logger.Warn("coalesce: store write failed", "key", key, "error", err)
	}
}

// Invalidate deletes key and its stale copy. The store must implement
// adapter.Deleter.
func (c *Coalescer[T]) Invalidate(ctx context.Context, key string) error {
	d, ok := c.store.(adapter.Deleter)
	if !ok {
		return ErrNotSupported
	}
	if err := d.Delete(ctx, key); err != nil {
		return err
	}
	return d.Delete(ctx, StaleKey(key))
}
