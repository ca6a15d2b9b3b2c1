// Package memory holds in-process implementations used when Redis is not
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/exam-api/internal/domain/repository"
)

// Locker is a keyed mutex implementing repository.Locker inside one process.
// ttl is ignored: a holder cannot outlive the process.
type Locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

// NewLocker creates a keyed mutex; wait bounds each Acquire call.
func NewLocker(wait time.Duration) *Locker {
	return &Locker{slots: make(map[string]chan struct{}), wait: wait}
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire implements repository.Locker
func (l *Locker) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := l.slot(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", repository.ErrLockNotAcquired, key)
	}
}
