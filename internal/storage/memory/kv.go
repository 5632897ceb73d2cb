// Package memory provides in-process storage implementations for development
// and tests. Nothing here survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/curation-tracker/internal/storage"
)

// KV stores values in a map guarded by a mutex.
type KV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewKV constructs an empty KV.
func NewKV() *KV {
	return &KV{values: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *KV) Get(_ context.Context, key string) ([]byte, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value under key.
func (s *KV) Set(_ context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key if present.
func (s *KV) Delete(_ context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
