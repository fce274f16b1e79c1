package core

const (
	// LockPrefix namespaces lock keys.
	LockPrefix = "cache-coalescer:lock:"
	// StalePrefix namespaces stale copies of cached values.
	StalePrefix = "cache-coalescer:stale:"
)

// LockKey returns the lock key guarding the computation of key.
func LockKey(key string) string { return LockPrefix + key }

// StaleKey returns the key holding the stale fallback copy of key.
func StaleKey(key string) string { return StalePrefix + key }
