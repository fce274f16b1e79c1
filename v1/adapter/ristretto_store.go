package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ErrWriteRejected is returned when a bounded store drops a write under pressure.
var ErrWriteRejected = errors.New("coalesce: store rejected write")

// RistrettoStore implements Store using dgraph-io/ristretto. Entries are held
// as values, every entry costs one unit so MaxCost bounds the entry count.
type RistrettoStore[T any] struct {
	c *ristretto.Cache
}

// RistrettoConfig is the subset of ristretto settings exposed by the store.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// NewRistrettoStore returns a Store backed by ristretto. Zero fields of cfg
// fall back to a cache sized for ten thousand entries.
func NewRistrettoStore[T any](cfg RistrettoConfig) (*RistrettoStore[T], error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e5
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1e4
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoStore[T]{c: rc}, nil
}

// Read implements Store.Read.
func (r *RistrettoStore[T]) Read(ctx context.Context, key string) (Entry[T], bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry[T]{}, false, err
	}
	v, ok := r.c.Get(key)
	if !ok {
		return Entry[T]{}, false, nil
	}
	e, ok := v.(Entry[T])
	if !ok {
		// foreign value shape, drop it
		r.c.Del(key)
		return Entry[T]{}, false, nil
	}
	return e, true, nil
}

// Write implements Store.Write. The write is visible to readers on return.
func (r *RistrettoStore[T]) Write(ctx context.Context, key string, e Entry[T], ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if !r.c.SetWithTTL(key, e, 1, ttl) {
		return ErrWriteRejected
	}
	r.c.Wait()
	return nil
}

// Delete implements Deleter.
func (r *RistrettoStore[T]) Delete(ctx context.Context, key string) error {
	r.c.Del(key)
	r.c.Wait()
	return nil
}

// Close releases resources held by the cache.
func (r *RistrettoStore[T]) Close() {
	r.c.Close()
}
