package cachestore

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe, in-memory Store implementation. It is the
// natural choice for tests and for engines that do not need the cache to
// survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Record)}
}

// Get returns the record for key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.data[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Put overwrites the record for key.
func (s *MemoryStore) Put(_ context.Context, key string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = record
	return nil
}

// Clear removes every record in one critical section.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]Record)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
