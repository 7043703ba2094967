package registry

import (
	"context"
	"sync"
)

// DefaultCapacity matches the registry's historical table size.
const DefaultCapacity = 100

type memoryStore struct {
	mu       sync.RWMutex
	capacity int
	records  map[uint32]Record
}

// NewMemoryStore builds an in-memory store holding at most capacity users.
// A capacity of zero or less means unbounded.
func NewMemoryStore(capacity int) Store {
	return &memoryStore{capacity: capacity, records: make(map[uint32]Record)}
}

func (s *memoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.UserID]; !exists && s.capacity > 0 && len(s.records) >= s.capacity {
		return ErrRegistryFull
	}
	s.records[rec.UserID] = rec
	return nil
}

func (s *memoryStore) Get(_ context.Context, userID uint32) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	return rec, ok, nil
}
