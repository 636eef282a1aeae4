package storage

import (
	"context"
	"sync"

	"github.com/layer-3/esrlink/ports"
)

// MemoryStorage is an in-memory implementation of the Storage interface
type MemoryStorage struct {
	data map[string]string
	mu   sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]string),
	}
}

var _ ports.Storage = (*MemoryStorage)(nil)

// Write stores data at key
func (s *MemoryStorage) Write(ctx context.Context, key, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = data
	return nil
}

// Read returns the data stored at key
func (s *MemoryStorage) Read(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	return data, ok, nil
}

// Remove deletes key
func (s *MemoryStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Keys returns the number of stored keys
func (s *MemoryStorage) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}
