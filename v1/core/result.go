package core

import "github.com/mirkobrombin/go-coalesce/v1/adapter"

// Kind classifies a store read.
type Kind int

const (
	// Miss means nothing usable is cached.
	Miss Kind = iota
	// Hit means a value is cached.
	Hit
	// NullHit means the producer's "no value" result is cached.
	NullHit
)

func (k Kind) String() string {
	switch k {
	case Hit:
		return "hit"
	case NullHit:
		return "null_hit"
	default:
		return "miss"
	}
}

// Result is the outcome of reading a key from the store.
type Result[T any] struct {
	Kind  Kind
	Value T
}

// classify turns a raw store read into a Result. A stored null only counts as
// a hit for callers that opted into null caching.
func classify[T any](e adapter.Entry[T], found, cacheNil bool) Result[T] {
	switch {
	case !found:
		return Result[T]{Kind: Miss}
	case e.Null && cacheNil:
		return Result[T]{Kind: NullHit}
	case e.Null:
		return Result[T]{Kind: Miss}
	default:
		return Result[T]{Kind: Hit, Value: e.Value}
	}
}
