package store

import (
	"context"
	"sync"
)

// MemoryStore holds encoded states in process memory. States go through the
// same codec as the durable backends so callers never share slices with it.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) GetItem(_ context.Context, name string) (*State, error) {
	s.mu.RLock()
	data, ok := s.items[name]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return Decode(data)
}

func (s *MemoryStore) SetItem(_ context.Context, name string, state *State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.items[name] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) RemoveItem(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.items, name)
	s.mu.Unlock()
	return nil
}

// Put stores raw bytes under name, bypassing the codec.
func (s *MemoryStore) Put(name string, data []byte) {
	s.mu.Lock()
	s.items[name] = data
	s.mu.Unlock()
}

func (s *MemoryStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[name]
	return ok
}
