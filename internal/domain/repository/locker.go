package repository

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired means the lock stayed held by someone else for the
// whole wait period.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker serializes work on a key across goroutines or service replicas.
type Locker interface {
	// Acquire blocks until the lock is held, ctx is done or the wait
	// period ends. ttl bounds how long a crashed holder can keep the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
