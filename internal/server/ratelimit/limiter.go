// Package ratelimit throttles login and refresh calls with fixed-window
// counters in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

const keyPrefix = "sessionkeeper:rl:"

// Limiter allows at most Limit calls per key within Window.
type Limiter struct {
	redis  redis.UniversalClient
	limit  int
	window time.Duration
}

func New(client redis.UniversalClient, limit int, window time.Duration) *Limiter {
	return &Limiter{redis: client, limit: limit, window: window}
}

// Allow counts one call against key. It returns common.ErrRateLimited once
// the window budget is spent, or ErrRedisUnavailable if Redis fails; callers
// decide whether to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	if l == nil || l.limit <= 0 {
		return nil
	}

	k := keyPrefix + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.limit) {
		return common.ErrRateLimited
	}
	return nil
}

// Ping checks connectivity at startup.
func (l *Limiter) Ping(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
