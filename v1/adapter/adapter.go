// Package adapter defines the cache store consumed by the coalescer and ships
// ready-made stores: in-memory, Redis, ristretto and bigcache.
package adapter

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mirkobrombin/go-coalesce/v1/lock"
)

// Entry is a stored cache value. Null marks a producer result of "no value"
// cached on purpose, which is distinct from the key being absent.
type Entry[T any] struct {
	Value T
	Null  bool
}

// ValueEntry wraps v in an Entry.
func ValueEntry[T any](v T) Entry[T] { return Entry[T]{Value: v} }

// NullEntry returns the cached-null marker.
func NullEntry[T any]() Entry[T] { return Entry[T]{Null: true} }

// Store is the cache the coalescer reads from and writes to.
//
// T represents the type of values stored in the adapter.
type Store[T any] interface {
	// Read retrieves the entry for a key. The boolean return indicates
	// whether the key was found and unexpired.
	Read(ctx context.Context, key string) (Entry[T], bool, error)
	// Write stores the entry for ttl. A non-positive ttl means no expiry.
	Write(ctx context.Context, key string, e Entry[T], ttl time.Duration) error
}

// Deleter is implemented by stores that support explicit removal.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Option configures the stores of this package. Options that do not apply to
// a store are ignored by it.
type Option func(*storeOptions)

type storeOptions struct {
	timeout  time.Duration
	codec    Codec
	now      func() time.Time
	logger   *slog.Logger
	lockOpts []lock.Option
}

func newStoreOptions(opts []Option) storeOptions {
	o := storeOptions{
		timeout: defaultRedisOpTimeout,
		codec:   JSONCodec{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) Option {
	return func(o *storeOptions) { o.timeout = d }
}

// WithCodec sets the value codec of byte-oriented stores. JSONCodec is the default.
func WithCodec(c Codec) Option {
	return func(o *storeOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithClock replaces the time source used for expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for self-healing notices.
func WithLogger(l *slog.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// InMemoryStore is a simple Store implementation backed by a map with lazy
// per-entry expiry.
type InMemoryStore[T any] struct {
	mu    sync.Mutex
	items map[string]memItem[T]
	now   func() time.Time
}

type memItem[T any] struct {
	entry     Entry[T]
	expiresAt time.Time
}

// NewInMemoryStore returns a new InMemoryStore.
func NewInMemoryStore[T any](opts ...Option) *InMemoryStore[T] {
	o := newStoreOptions(opts)
	return &InMemoryStore[T]{items: make(map[string]memItem[T]), now: o.now}
}

// Read implements Store.Read.
func (s *InMemoryStore[T]) Read(ctx context.Context, key string) (Entry[T], bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry[T]{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return Entry[T]{}, false, nil
	}
	if !it.expiresAt.IsZero() && !s.now().Before(it.expiresAt) {
		delete(s.items, key)
		return Entry[T]{}, false, nil
	}
	return it.entry, true, nil
}

// Write implements Store.Write.
func (s *InMemoryStore[T]) Write(ctx context.Context, key string, e Entry[T], ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = memItem[T]{entry: e, expiresAt: exp}
	s.mu.Unlock()
	return nil
}

// Delete implements Deleter.
func (s *InMemoryStore[T]) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// ExpiresAt returns the expiry of key and whether it is present. A zero time
// means the entry never expires.
func (s *InMemoryStore[T]) ExpiresAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	return it.expiresAt, ok
}

// Keys returns the sorted list of keys currently held, expired ones included.
func (s *InMemoryStore[T]) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}
