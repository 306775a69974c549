package storage

import (
	"fmt"
	"sync"
)

// MemoryStore keeps values in process memory; used when no database path is configured
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Key][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key][]byte)}
}

// Contains reports whether key has a stored value
func (s *MemoryStore) Contains(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Get returns a copy of the value stored under key
func (s *MemoryStore) Get(key Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value under key
func (s *MemoryStore) Put(key Key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte{}, value...)
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
