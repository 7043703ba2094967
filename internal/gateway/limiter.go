package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// DefaultAttemptsPerMinute caps login attempts per user.
const DefaultAttemptsPerMinute = 5

// Limiter throttles login attempts per user.
type Limiter interface {
	Allow(ctx context.Context, userID uint32) (bool, error)
}

// RedisLimiter counts attempts per user in fixed one-minute windows.
type RedisLimiter struct {
	cache     *redis.Client
	maxPerMin int
}

// NewRedisLimiter builds a limiter backed by Redis.
func NewRedisLimiter(cache *redis.Client, maxPerMin int) *RedisLimiter {
	if maxPerMin <= 0 {
		maxPerMin = DefaultAttemptsPerMinute
	}
	return &RedisLimiter{cache: cache, maxPerMin: maxPerMin}
}

// Allow records an attempt and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, userID uint32) (bool, error) {
	key := "rl:login:" + strconv.FormatUint(uint64(userID), 10)
	cnt, err := l.cache.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		l.cache.Expire(ctx, key, time.Minute)
	}
	return cnt <= int64(l.maxPerMin), nil
}

// MemoryLimiter is a token bucket per user.
type MemoryLimiter struct {
	mu        sync.Mutex
	perMinute int
	limiters  map[uint32]*rate.Limiter
}

// NewMemoryLimiter allows perMinute attempts per user, refilled evenly.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	if perMinute <= 0 {
		perMinute = DefaultAttemptsPerMinute
	}
	return &MemoryLimiter{perMinute: perMinute, limiters: make(map[uint32]*rate.Limiter)}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, userID uint32) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow(), nil
}
