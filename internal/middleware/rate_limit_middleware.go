package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimitConfig holds one limit
type RateLimitConfig struct {
	// MaxRequests allowed per Window
	MaxRequests int
	Window      time.Duration
	// KeyPrefix namespaces the counters
	KeyPrefix string
}

// SubmitRateLimitConfig limits how often one student may hit submit endpoints
func SubmitRateLimitConfig(maxRequests int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: maxRequests,
		Window:      window,
		KeyPrefix:   "rl:submit",
	}
}

// RateCounter counts hits of a key inside a fixed window
type RateCounter interface {
	// Hit increments key and returns the new count and the time left in the window
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisRateCounter implements RateCounter with INCR and EXPIRE
type RedisRateCounter struct {
	client redis.UniversalClient
}

// NewRedisRateCounter creates a counter on an existing client
func NewRedisRateCounter(client redis.UniversalClient) *RedisRateCounter {
	return &RedisRateCounter{client: client}
}

// Hit implements RateCounter
func (r *RedisRateCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	// first hit opens the window
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, err
		}
		return count, window, nil
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return count, window, nil
	}
	return count, ttl, nil
}

// RateLimiter builds rate limiting middleware. A nil counter disables limiting.
type RateLimiter struct {
	counter RateCounter
	logger  *zap.Logger
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(counter RateCounter, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, logger: logger.Named("RateLimiter")}
}

// LimitByStudent limits per authenticated student and route. The counter
// failing lets the request through.
func (rl *RateLimiter) LimitByStudent(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.counter == nil || cfg.MaxRequests <= 0 {
			c.Next()
			return
		}

		who := c.GetString(ContextStudentID)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := fmt.Sprintf("%s:%s:%s", cfg.KeyPrefix, who, path)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, ttl, err := rl.counter.Hit(ctx, key, cfg.Window)
		if err != nil {
			rl.logger.Warn("rate counter failed, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining := cfg.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		retryAfter := int(ttl.Seconds())
		if retryAfter <= 0 {
			retryAfter = int(cfg.Window.Seconds())
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", retryAfter))

		if int(count) > cfg.MaxRequests {
			rl.logger.Info("rate limit exceeded", zap.String("who", who), zap.String("path", path), zap.Int64("count", count))
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"error_type":  "rate_limited",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
