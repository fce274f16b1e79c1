package lock

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
)

type natsRecord struct {
	Token     string `msgpack:"t"`
	ExpiresAt int64  `msgpack:"e"`
}

// NATS implements Locker on top of a JetStream key-value bucket. Every
// transition is guarded by the bucket's per-key revision, so acquire, takeover
// of an expired lock and release are each a single compare-and-set.
type NATS struct {
	kv   nats.KeyValue
	opts options
}

// NewNATS returns a locker storing its locks in kv.
func NewNATS(kv nats.KeyValue, opts ...Option) (*NATS, error) {
	if kv == nil {
		return nil, ErrNilClient
	}
	return &NATS{kv: kv, opts: newOptions(opts)}, nil
}

// OpenNATSBucket binds to the named bucket, creating it when missing.
func OpenNATSBucket(js nats.JetStreamContext, bucket string) (nats.KeyValue, error) {
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		return js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket, History: 1})
	}
	return kv, err
}

// kvKey maps an arbitrary lock key onto the KV key alphabet.
func kvKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Acquire implements Locker.Acquire.
func (n *NATS) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	name := kvKey(key)
	now := n.opts.now()
	rec, err := msgpack.Marshal(natsRecord{Token: token, ExpiresAt: now.Add(ttl).UnixNano()})
	if err != nil {
		return false, err
	}
	_, err = n.kv.Create(name, rec)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, nats.ErrKeyExists) {
		return false, err
	}

	entry, err := n.kv.Get(name)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var cur natsRecord
	if err := msgpack.Unmarshal(entry.Value(), &cur); err == nil && now.UnixNano() < cur.ExpiresAt {
		return false, nil
	}
	// expired or unreadable: take over only if nobody wrote since we looked
	if _, err := n.kv.Update(name, rec, entry.Revision()); err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release implements Locker.Release.
func (n *NATS) Release(ctx context.Context, key, token string) bool {
	name := kvKey(key)
	entry, err := n.kv.Get(name)
	if err != nil {
		if !errors.Is(err, nats.ErrKeyNotFound) {
			n.opts.logger.Warn("coalesce: lock release failed", "key", key, "error", err)
		}
		return false
	}
	var cur natsRecord
	if err := msgpack.Unmarshal(entry.Value(), &cur); err != nil || cur.Token != token {
		return false
	}
	if err := n.kv.Delete(name, nats.LastRevision(entry.Revision())); err != nil {
		n.opts.logger.Warn("coalesce: lock release failed", "key", key, "error", err)
		return false
	}
	return true
}
