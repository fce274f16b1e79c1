// Package errors holds transport-level sentinels shared by the Redis store
// and the Redis locker so callers can match backend failures with errors.Is.
package errors

import (
	"context"
	stdErrors "errors"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrTimeout          = stdErrors.New("timeout")
	ErrConnectionClosed = stdErrors.New("connection closed")
)

// FromRedis maps go-redis and context failures onto the package sentinels.
// Unknown errors are returned unchanged, nil stays nil.
func FromRedis(err error) error {
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case stdErrors.Is(err, redis.ErrClosed):
		return ErrConnectionClosed
	default:
		return err
	}
}
