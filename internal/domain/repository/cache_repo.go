package repository

import (
	"context"
	"time"
)

// CacheRepository is a JSON value cache. GetJSON returns
// apperrors.ErrNotFound on a miss.
type CacheRepository interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
}
