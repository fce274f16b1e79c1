// Package lock provides the short-lived mutual exclusion used to elect a
// single producer per cache key. Locks are owned by a caller-minted token and
// expire after a TTL so a crashed holder never blocks a key forever.
//
// Three backends are available: Redis (SET NX PX plus a Lua compare-and-delete),
// NATS JetStream KV (revision-checked create, update and delete) and an
// in-process Memory locker. The network backends only release a lock when the
// token matches. Memory ignores the token on release: every caller shares one
// process, so ownership cannot be spoofed the way it can across a network.
package lock
