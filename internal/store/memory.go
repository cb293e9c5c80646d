package store

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/sync/singleflight"
)

// entry wraps a stored value with its expiration policy.
type entry struct {
	value     any
	expiresAt time.Time
	pinned    bool
}

func (e entry) expired(now time.Time) bool {
	return !e.pinned && !now.Before(e.expiresAt)
}

// MemoryConfig configures a Memory store.
type MemoryConfig struct {
	MaxEntries int      // upper bound on unpinned entries
	Clock      Clock    // nil = SystemClock
	Observer   Observer // nil = no events
}

// Memory is an in-memory W-TinyLFU store backed by otter. Expiration is
// checked lazily on read and reclaimed in bulk by Sweep. Pinned entries
// weigh nothing, so size-based eviction never selects them.
type Memory struct {
	cache    *otter.Cache[string, entry]
	group    singleflight.Group
	clock    Clock
	observer Observer

	// flights tracks creates in progress. Remove and Purge mark them
	// cancelled so a create that finishes afterwards does not store its value.
	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	cancelled bool
}

// panicError carries a panic out of a singleflight call so it can be
// re-raised on each waiting caller's goroutine.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("create panicked: %v\n\n%s", p.value, p.stack)
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.MaxEntries <= 0 {
		return nil, errors.New("max entries must be positive")
	}
	m := &Memory{
		clock:    cfg.Clock,
		observer: cfg.Observer,
		flights:  make(map[string]*flight),
	}
	if m.clock == nil {
		m.clock = SystemClock{}
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}

	c, err := otter.New(&otter.Options[string, entry]{
		MaximumWeight: uint64(cfg.MaxEntries),
		Weigher: func(_ string, e entry) uint32 {
			if e.pinned {
				return 0
			}
			return 1
		},
		OnDeletion: func(e otter.DeletionEvent[string, entry]) {
			if e.WasEvicted() {
				m.observer.CacheEvict()
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	m.cache = c
	return m, nil
}

// Now returns the store's notion of the current time.
func (m *Memory) Now() time.Time { return m.clock.Now() }

// TryGet returns the value under key if present and not expired.
func (m *Memory) TryGet(key string) (any, bool) {
	v, ok := m.lookup(key)
	if ok {
		m.observer.CacheHit()
	} else {
		m.observer.CacheMiss()
	}
	return v, ok
}

func (m *Memory) lookup(key string) (any, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok || e.expired(m.clock.Now()) {
		return nil, false
	}
	return e.value, true
}

// GetOrCreate returns the live value under key or creates it. Concurrent
// callers for the same key share a single invocation of create.
func (m *Memory) GetOrCreate(key string, create CreateFunc) (any, error) {
	if v, ok := m.TryGet(key); ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.create(key, create)
	})
	return v, repanic(err)
}

// GetOrCreateAsync is GetOrCreate with a cancellable wait. create runs on a
// context detached from ctx's cancellation so other waiters are unaffected.
func (m *Memory) GetOrCreateAsync(ctx context.Context, key string, create CreateCtxFunc) (any, error) {
	if v, ok := m.TryGet(key); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return m.create(key, func() (any, Policy, error) {
			return create(detached)
		})
	})

	select {
	case res := <-ch:
		return res.Val, repanic(res.Err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// create runs inside the singleflight group. A previous flight may have
// stored the value between the caller's miss and now, so look again first.
// A panic in create is recovered into a *panicError; nothing is stored.
// The value is returned but not stored when the key was removed while
// create ran.
func (m *Memory) create(key string, create CreateFunc) (v any, err error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}

	f := &flight{}
	m.mu.Lock()
	m.flights[key] = f
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.flights[key] == f {
			delete(m.flights, key)
		}
		m.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			m.observer.CacheLoadError()
			v, err = nil, &panicError{value: r, stack: debug.Stack()}
		}
	}()

	v, p, err := create()
	if err != nil {
		m.observer.CacheLoadError()
		return nil, err
	}
	m.observer.CacheLoad()

	m.mu.Lock()
	if !f.cancelled {
		m.cache.Set(key, entry{
			value:     v,
			expiresAt: p.ExpiresAt,
			pinned:    p.Pinned,
		})
	}
	m.mu.Unlock()
	return v, nil
}

// repanic re-raises a recovered create panic on the caller's goroutine.
func repanic(err error) error {
	if pe, ok := err.(*panicError); ok {
		panic(pe.value)
	}
	return err
}

// Remove deletes key from the store. A create in flight for key still
// returns its value to its waiters but does not store it.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	if f, ok := m.flights[key]; ok {
		f.cancelled = true
	}
	m.cache.Invalidate(key)
	m.mu.Unlock()
}

// Sweep removes every entry whose absolute expiration has passed and
// returns the number removed.
// Phase 1 snapshots expired keys; phase 2 rechecks and invalidates them.
func (m *Memory) Sweep() int {
	now := m.clock.Now()
	var stale []string
	for k, e := range m.cache.All() {
		if e.expired(now) {
			stale = append(stale, k)
		}
	}

	removed := 0
	for _, k := range stale {
		e, ok := m.cache.GetIfPresent(k)
		if !ok || !e.expired(now) {
			continue
		}
		m.cache.Invalidate(k)
		removed++
	}
	return removed
}

// Len returns the approximate number of stored entries, expired or not.
func (m *Memory) Len() int {
	return m.cache.EstimatedSize()
}

// Purge removes all entries, including those created by other consumers,
// and cancels the store step of every create in flight.
func (m *Memory) Purge() {
	m.mu.Lock()
	for _, f := range m.flights {
		f.cancelled = true
	}
	m.cache.InvalidateAll()
	m.mu.Unlock()
}
