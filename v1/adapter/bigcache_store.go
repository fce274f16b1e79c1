package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCacheStore implements Store using allegro/bigcache. bigcache only knows a
// global life window, so the per-entry TTL travels inside the envelope and is
// enforced on read.
type BigCacheStore[T any] struct {
	c    *bigcache.BigCache
	opts storeOptions
}

// NewBigCacheStore returns a Store backed by bigcache. lifeWindow is the
// longest time any entry is retained and must cover the largest TTL in use,
// stale TTLs included.
func NewBigCacheStore[T any](lifeWindow time.Duration, opts ...Option) (*BigCacheStore[T], error) {
	conf := bigcache.DefaultConfig(lifeWindow)
	conf.Verbose = false
	c, err := bigcache.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &BigCacheStore[T]{c: c, opts: newStoreOptions(opts)}, nil
}

// Read implements Store.Read.
func (b *BigCacheStore[T]) Read(ctx context.Context, key string) (Entry[T], bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry[T]{}, false, err
	}
	data, err := b.c.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return Entry[T]{}, false, nil
	}
	if err != nil {
		return Entry[T]{}, false, err
	}
	e, ok, err := decodeEntry[T](b.opts.codec, data, b.opts.now())
	if errors.Is(err, ErrCorruptEntry) {
		b.opts.logger.Warn("coalesce: dropping corrupt entry", "key", key)
		_ = b.c.Delete(key)
		return Entry[T]{}, false, nil
	}
	if err == nil && !ok {
		_ = b.c.Delete(key)
	}
	return e, ok, err
}

// Write implements Store.Write.
func (b *BigCacheStore[T]) Write(ctx context.Context, key string, e Entry[T], ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var exp time.Time
	if ttl > 0 {
		exp = b.opts.now().Add(ttl)
	}
	data, err := encodeEntry(b.opts.codec, e, exp)
	if err != nil {
		return err
	}
	return b.c.Set(key, data)
}

// Delete implements Deleter.
func (b *BigCacheStore[T]) Delete(ctx context.Context, key string) error {
	err := b.c.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Close releases resources held by the cache.
func (b *BigCacheStore[T]) Close() error {
	return b.c.Close()
}
