package testutil

import (
	"context"
	"sync"

	"github.com/eugener/remember/internal/store"
)

// FakeStore is a map-backed store.Store for testing. It never expires
// entries and records every Remove call.
type FakeStore struct {
	mu      sync.Mutex
	values  map[string]any
	removed []string
	creates int
}

var _ store.Store = (*FakeStore)(nil)

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]any)}
}

// Put inserts a value directly, bypassing get-or-create, the way another
// consumer sharing the store would.
func (s *FakeStore) Put(key string, v any) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

// TryGet looks up key.
func (s *FakeStore) TryGet(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// GetOrCreate holds the lock while create runs, so it is trivially atomic.
func (s *FakeStore) GetOrCreate(key string, create store.CreateFunc) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	s.creates++
	v, _, err := create()
	if err != nil {
		return nil, err
	}
	s.values[key] = v
	return v, nil
}

// GetOrCreateAsync delegates to GetOrCreate.
func (s *FakeStore) GetOrCreateAsync(ctx context.Context, key string, create store.CreateCtxFunc) (any, error) {
	return s.GetOrCreate(key, func() (any, store.Policy, error) {
		return create(ctx)
	})
}

// Remove deletes key and records the call.
func (s *FakeStore) Remove(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.removed = append(s.removed, key)
	s.mu.Unlock()
}

// Removed returns the keys passed to Remove, in call order.
func (s *FakeStore) Removed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

// Creates returns how many times a create function was invoked.
func (s *FakeStore) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}
