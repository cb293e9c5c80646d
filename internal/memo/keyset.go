package memo

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const keyShards = 16 // power of two

type keyShard struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// keySet is a concurrency-safe set of strings, sharded by key hash to
// spread lock contention across concurrent Remember calls.
type keySet struct {
	shards [keyShards]keyShard
}

func newKeySet() *keySet {
	s := &keySet{}
	for i := range s.shards {
		s.shards[i].keys = make(map[string]struct{})
	}
	return s
}

func (s *keySet) shard(key string) *keyShard {
	return &s.shards[xxhash.Sum64String(key)&(keyShards-1)]
}

func (s *keySet) Add(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	sh.keys[key] = struct{}{}
	sh.mu.Unlock()
}

func (s *keySet) Remove(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.keys, key)
	sh.mu.Unlock()
}

func (s *keySet) Contains(key string) bool {
	sh := s.shard(key)
	sh.mu.RLock()
	_, ok := sh.keys[key]
	sh.mu.RUnlock()
	return ok
}

func (s *keySet) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.keys)
		sh.mu.RUnlock()
	}
	return n
}

// Keys returns a snapshot of the members in no particular order.
func (s *keySet) Keys() []string {
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k := range sh.keys {
			out = append(out, k)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Drain empties the set shard by shard and returns what it held.
// Keys added to a shard after it was drained stay in the set.
func (s *keySet) Drain() []string {
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		old := sh.keys
		sh.keys = make(map[string]struct{})
		sh.mu.Unlock()
		for k := range old {
			out = append(out, k)
		}
	}
	return out
}
