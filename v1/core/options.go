package core

import (
	"log/slog"
	"time"

	"github.com/mirkobrombin/go-coalesce/v1/lock"
)

const (
	// DefaultLockTTL is how long a producer holds the lock unless overridden.
	DefaultLockTTL = 5 * time.Second
	// DefaultWaitTimeout is how long a caller polls for another holder's result.
	DefaultWaitTimeout = 5 * time.Second
	// DefaultWaitSleep is the polling interval of waiting callers.
	DefaultWaitSleep = 50 * time.Millisecond
)

// Option configures a Coalescer.
type Option func(*config)

type config struct {
	locker   lock.Locker
	logger   *slog.Logger
	tracing  bool
	defaults []FetchOption
	token    func() string
}

// WithLocker sets the lock backend used by every Fetch. Without it the store's
// own locker is used when it implements lock.Provider, else an in-process one.
func WithLocker(l lock.Locker) Option {
	return func(c *config) { c.locker = l }
}

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracing enables OpenTelemetry spans for Fetch.
func WithTracing() Option {
	return func(c *config) { c.tracing = true }
}

// WithDefaults sets fetch options applied to every call before its own options.
func WithDefaults(opts ...FetchOption) Option {
	return func(c *config) { c.defaults = append(c.defaults, opts...) }
}

// withTokens replaces the lock token generator.
func withTokens(fn func() string) Option {
	return func(c *config) { c.token = fn }
}

// FetchOption tunes a single Fetch call.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	lockTTL     time.Duration
	waitTimeout time.Duration
	waitSleep   time.Duration
	staleTTL    time.Duration
	locker      lock.Locker
	cacheNil    bool
}

func newFetchConfig(defaults, opts []FetchOption) fetchConfig {
	fc := fetchConfig{
		lockTTL:     DefaultLockTTL,
		waitTimeout: DefaultWaitTimeout,
		waitSleep:   DefaultWaitSleep,
	}
	for _, opt := range defaults {
		opt(&fc)
	}
	for _, opt := range opts {
		opt(&fc)
	}
	if fc.lockTTL <= 0 {
		fc.lockTTL = DefaultLockTTL
	}
	if fc.waitTimeout < 0 {
		fc.waitTimeout = 0
	}
	if fc.waitSleep < 0 {
		fc.waitSleep = 0
	}
	if fc.staleTTL < 0 {
		fc.staleTTL = 0
	}
	return fc
}

// WithLockTTL sets how long the lock blocks other producers. It should cover
// the producer's expected runtime: an expired lock can be taken by a second
// caller while the first is still computing.
func WithLockTTL(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.lockTTL = d }
}

// WithWaitTimeout sets how long a caller that lost the lock polls the store.
func WithWaitTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.waitTimeout = d }
}

// WithWaitSleep sets the polling interval while waiting.
func WithWaitSleep(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.waitSleep = d }
}

// WithStaleTTL keeps a stale copy of every computed value for ttl+d and serves
// it when neither a fresh value nor the lock can be obtained. Zero disables it.
func WithStaleTTL(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.staleTTL = d }
}

// WithLockClient overrides the Coalescer's locker for one call.
func WithLockClient(l lock.Locker) FetchOption {
	return func(c *fetchConfig) { c.locker = l }
}

// WithCacheNil stores a producer's "no value" result as a cached null instead
// of leaving the key empty, and treats cached nulls as hits.
func WithCacheNil() FetchOption {
	return func(c *fetchConfig) { c.cacheNil = true }
}
