package gateway

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayPrefix = "replay:v1:"

// DefaultReplayCapacity bounds the in-memory replay cache.
const DefaultReplayCapacity = 10000

// ReplayGuard remembers challenges that already produced a login attempt.
// FirstUse returns true exactly once per challenge within ttl.
type ReplayGuard interface {
	FirstUse(ctx context.Context, ch Challenge, ttl time.Duration) (bool, error)
}

func replayKey(ch Challenge) string {
	return fmt.Sprintf("%d:%d:%d", ch.UserID, ch.Timestamp, ch.Signature)
}

// RedisReplayGuard marks challenges with SETNX so every gateway sharing the
// Redis instance sees the same history.
type RedisReplayGuard struct {
	cache *redis.Client
}

func NewRedisReplayGuard(cache *redis.Client) *RedisReplayGuard {
	return &RedisReplayGuard{cache: cache}
}

func (g *RedisReplayGuard) FirstUse(ctx context.Context, ch Challenge, ttl time.Duration) (bool, error) {
	return g.cache.SetNX(ctx, replayPrefix+replayKey(ch), 1, ttl).Result()
}

type replayEntry struct {
	key     string
	expires time.Time
}

// MemoryReplayGuard is a size-limited TTL cache kept in insertion order, so
// the oldest entry is always at the front.
type MemoryReplayGuard struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	now     func() time.Time
}

func NewMemoryReplayGuard(maxSize int) *MemoryReplayGuard {
	if maxSize <= 0 {
		maxSize = DefaultReplayCapacity
	}
	return &MemoryReplayGuard{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (g *MemoryReplayGuard) FirstUse(_ context.Context, ch Challenge, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.pruneLocked(now)

	key := replayKey(ch)
	if elem, ok := g.seen[key]; ok {
		if now.Before(elem.Value.(*replayEntry).expires) {
			return false, nil
		}
		g.order.Remove(elem)
		delete(g.seen, key)
	}

	if len(g.seen) >= g.maxSize {
		g.evictOldestLocked()
	}
	g.seen[key] = g.order.PushBack(&replayEntry{key: key, expires: now.Add(ttl)})
	return true, nil
}

// Len reports how many challenges are remembered.
func (g *MemoryReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// pruneLocked drops expired entries from the front. Must be called with mu held.
func (g *MemoryReplayGuard) pruneLocked(now time.Time) {
	for front := g.order.Front(); front != nil; front = g.order.Front() {
		entry := front.Value.(*replayEntry)
		if now.Before(entry.expires) {
			return
		}
		g.order.Remove(front)
		delete(g.seen, entry.key)
	}
}

func (g *MemoryReplayGuard) evictOldestLocked() {
	front := g.order.Front()
	if front == nil {
		return
	}
	g.order.Remove(front)
	delete(g.seen, front.Value.(*replayEntry).key)
}
