// Package settings persists the assistant's small key/value preferences.
// The platform detector consults it for the optional user override; nothing
// else in the core touches persisted state.
package settings

import (
	"context"
	"sync"
)

// Store is an asynchronous key/value store. Get reports presence explicitly
// so an empty value and a missing key stay distinguishable.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Well-known keys.
const (
	// KeyPlatformOverride holds an explicit platform preference that wins
	// over every detection strategy.
	KeyPlatformOverride = "platform.override"
)

// Memory is an in-process Store used by tests and as a fallback.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *Memory) Close() error { return nil }
