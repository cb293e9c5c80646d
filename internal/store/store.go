// Package store defines the expiring key/value collaborator used by the
// memoizing cache, together with an in-memory implementation backed by otter.
package store

import (
	"context"
	"time"
)

// Policy is the expiration policy attached to a stored entry.
// A pinned entry never expires and is never evicted by size pressure;
// otherwise the entry is valid until ExpiresAt.
type Policy struct {
	ExpiresAt time.Time
	Pinned    bool
}

// Absolute returns a policy that expires the entry at t.
func Absolute(t time.Time) Policy { return Policy{ExpiresAt: t} }

// Never returns a policy that pins the entry until it is removed explicitly.
func Never() Policy { return Policy{Pinned: true} }

// CreateFunc produces a value and its expiration policy on a cache miss.
type CreateFunc func() (any, Policy, error)

// CreateCtxFunc is the context-aware form of CreateFunc.
type CreateCtxFunc func(ctx context.Context) (any, Policy, error)

// Store is an expiring key/value store with atomic per-key get-or-create.
type Store interface {
	// TryGet returns the live value stored under key.
	TryGet(key string) (any, bool)
	// GetOrCreate returns the live value under key, or runs create once for
	// all concurrent callers and stores its result. Errors from create are
	// returned unchanged and nothing is stored.
	GetOrCreate(key string, create CreateFunc) (any, error)
	// GetOrCreateAsync is GetOrCreate whose wait can be abandoned via ctx.
	// Abandoning the wait does not cancel a creation already in flight.
	GetOrCreateAsync(ctx context.Context, key string, create CreateCtxFunc) (any, error)
	// Remove deletes key. Removing an absent key is a no-op.
	Remove(key string)
}

// Clock supplies the current time for expiration checks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Observer receives store events, typically to feed metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheLoad()
	CacheLoadError()
	CacheEvict()
}

type nopObserver struct{}

func (nopObserver) CacheHit()       {}
func (nopObserver) CacheMiss()      {}
func (nopObserver) CacheLoad()      {}
func (nopObserver) CacheLoadError() {}
func (nopObserver) CacheEvict()     {}
