package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/domain/repository"
)

const lockKeyPrefix = "lock:"

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker implements repository.Locker with SET NX PX and a random owner token.
type Locker struct {
	client redis.UniversalClient
	wait   time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewLocker creates a distributed locker. wait bounds how long Acquire
// polls for a held lock, retry is the polling interval.
func NewLocker(client redis.UniversalClient, wait, retry time.Duration, logger *zap.Logger) *Locker {
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &Locker{client: client, wait: wait, retry: retry, logger: logger.Named("RedisLocker")}
}

// Acquire implements repository.Locker
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	fullKey := lockKeyPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, fullKey, token, ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("%w: %s", repository.ErrLockNotAcquired, key)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.releaser(fullKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: %s", repository.ErrLockNotAcquired, key)
		case <-ticker.C:
		}
	}
}

func (l *Locker) releaser(key, token string) func() {
	return func() {
		// release must run even if the caller's context is already cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		deleted, err := unlockScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			l.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			return
		}
		if deleted == 0 {
			l.logger.Warn("lock expired before release", zap.String("key", key))
		}
	}
}
