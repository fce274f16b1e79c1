package lock

import (
	"context"
	"sync"
	"time"
)

// Memory implements Locker with a process-local table of expiry times.
//
// Release does not check the token. A caller whose lock expired and was taken
// over by another caller will therefore delete the new owner's entry; use a
// network backend when that matters.
type Memory struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewMemory returns an empty in-process locker.
func NewMemory(opts ...Option) *Memory {
	o := newOptions(opts)
	return &Memory{locks: make(map[string]time.Time), now: o.now}
}

// Acquire implements Locker.Acquire.
func (m *Memory) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.locks[key]; ok && exp.After(now) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

// Release implements Locker.Release. The token is accepted but not checked.
func (m *Memory) Release(ctx context.Context, key, token string) bool {
	m.mu.Lock()
	delete(m.locks, key)
	m.mu.Unlock()
	return true
}

// Held reports whether key is currently locked and unexpired.
func (m *Memory) Held(key string) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.locks[key]
	return ok && exp.After(now)
}
