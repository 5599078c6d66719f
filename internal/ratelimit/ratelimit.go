// Package ratelimit provides Redis-based fixed-window rate limiting for
// the HTTP surface, mainly to keep one client from churning websocket
// connections.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

const (
	connectLimit  = 30
	connectWindow = time.Minute
)

// Limiter counts events per key in Redis. A nil limiter, or one without
// a Redis client, allows everything: rate limiting is an optional layer
// and availability wins over enforcement.
type Limiter struct {
	redis *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{redis: rdb}
}

// CheckConnect limits websocket connection attempts per remote address.
func (l *Limiter) CheckConnect(ctx context.Context, remoteAddr string) error {
	if l == nil || l.redis == nil {
		return nil
	}

	key := fmt.Sprintf("ratelimit:ws:connect:%s", remoteAddr)
	if err := l.checkLimit(ctx, key, connectLimit, connectWindow); err != nil {
		log.Printf("[RateLimit] %s exceeded websocket connect limit", remoteAddr)
		return ErrRateLimited
	}
	return nil
}

// checkLimit increments the window counter and compares it to the limit.
// Redis errors fail open.
func (l *Limiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}

	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}

	if int(count) > limit {
		return ErrRateLimited
	}
	return nil
}
