package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const sessionPrefix = "session:v1:"

// SessionStore persists granted sessions.
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id uuid.UUID) (Session, bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisSessionStore keeps sessions in Redis with their remaining lifetime as
// TTL. Keys carry a digest of the session id, never the id itself.
type RedisSessionStore struct {
	cache *redis.Client
}

func NewRedisSessionStore(cache *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{cache: cache}
}

func sessionKey(id uuid.UUID) string {
	sum := blake2b.Sum256(id[:])
	return sessionPrefix + hex.EncodeToString(sum[:])
}

func (s *RedisSessionStore) Create(ctx context.Context, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	return s.cache.Set(ctx, sessionKey(session.ID), payload, ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (Session, bool, error) {
	raw, err := s.cache.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return session, true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.cache.Del(ctx, sessionKey(id)).Err()
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[uuid.UUID]Session)}
}

func (m *MemorySessionStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id uuid.UUID) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
