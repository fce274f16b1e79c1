package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrInvalidTTL is returned when a lock is requested with a non-positive TTL.
	ErrInvalidTTL = errors.New("coalesce: lock ttl must be positive")
	// ErrNilClient is returned when a network locker is built without a connection.
	ErrNilClient = errors.New("coalesce: lock backend has no client")
	// ErrNoLockBackend is returned by FromStore when the store cannot derive a locker.
	ErrNoLockBackend = errors.New("coalesce: store does not expose a lock backend")
)

// Locker is the contract shared by every backend.
type Locker interface {
	// Acquire sets key to token only if the key is unset or expired, with an
	// expiry of ttl. It reports whether this call established ownership.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release deletes key only if it is still owned by token. Backend failures
	// are swallowed and reported as false.
	Release(ctx context.Context, key, token string) bool
}

// Provider is implemented by stores that can hand out a locker sharing their
// connection.
type Provider interface {
	Locker() (Locker, error)
}

// FromStore derives the network locker of store. It fails when store does not
// implement Provider or when the provider cannot build a locker.
func FromStore(store any) (Locker, error) {
	p, ok := store.(Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNoLockBackend, store)
	}
	l, err := p.Locker()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLockBackend, err)
	}
	return l, nil
}

// Option configures a locker.
type Option func(*options)

type options struct {
	timeout time.Duration
	scoped  bool
	logger  *slog.Logger
	now     func() time.Time
}

func newOptions(opts []Option) options {
	o := options{scoped: true, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout bounds every backend round trip. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithScopedConn controls whether the Redis locker checks out a dedicated
// pooled connection for each call. It is enabled by default.
func WithScopedConn(enabled bool) Option {
	return func(o *options) { o.scoped = enabled }
}

// WithLogger sets the logger used to report swallowed release failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces the time source used for expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
