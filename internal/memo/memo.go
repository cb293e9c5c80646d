// Package memo implements a memoizing cache on top of an expiring store.
//
// Values are computed at most once per key while they remain live in the
// store. Every key inserted through Remember or Forever is tracked, so Flush
// can evict exactly the entries this cache created even when the store is
// shared with other consumers.
//
// Go methods cannot take type parameters, so the typed operations (Get,
// Remember, Forever and their async forms) are package functions taking a
// *Cache.
package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eugener/remember/internal/store"
	"github.com/eugener/remember/internal/telemetry"
)

// ErrTypeMismatch is returned by Remember and Forever when the live value
// under the key has a different type than the caller asked for.
var ErrTypeMismatch = errors.New("cached value has unexpected type")

const tracerName = "github.com/eugener/remember/internal/memo"

// Cache memoizes producer results in a store and tracks the keys it inserted.
type Cache struct {
	store store.Store
	clock store.Clock
	keys  *keySet
}

// New returns a Cache over s. Expiration deadlines are computed with clock,
// which must agree with the clock s checks expiry against. A nil clock means
// the store's own clock when s exposes one (as *store.Memory does), else
// the wall clock.
func New(s store.Store, clock store.Clock) *Cache {
	if clock == nil {
		if sc, ok := s.(store.Clock); ok {
			clock = sc
		} else {
			clock = store.SystemClock{}
		}
	}
	return &Cache{store: s, clock: clock, keys: newKeySet()}
}

// Has reports whether key was inserted through this cache and not since
// forgotten or flushed. It does not check whether the entry is still live.
func (c *Cache) Has(key string) bool {
	return c.keys.Contains(key)
}

// Forget removes key from the store and from the tracked set. A Remember
// still in flight for key returns its value but leaves nothing stored.
func (c *Cache) Forget(key string) {
	c.store.Remove(key)
	c.keys.Remove(key)
}

// Flush removes every tracked key from the store and clears the tracked set.
// Keys already gone from the store are skipped silently.
func (c *Cache) Flush() {
	keys := c.keys.Drain()
	for _, k := range keys {
		c.store.Remove(k)
	}
	slog.LogAttrs(context.Background(), slog.LevelDebug, "cache flushed",
		slog.Int("keys", len(keys)),
	)
}

// Keys returns a snapshot of the tracked keys in no particular order.
func (c *Cache) Keys() []string {
	return c.keys.Keys()
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	return c.keys.Len()
}

// Get returns the value stored under key if it is live and of type T.
// Otherwise it returns def[0], or T's zero value when no default is given.
// A type mismatch is treated as a miss.
func Get[T any](c *Cache, key string, def ...T) T {
	if raw, ok := c.store.TryGet(key); ok {
		if v, ok := raw.(T); ok {
			return v
		}
	}
	return fallback(def)
}

// GetAsync is Get for async call sites. Lookups never block, so it completes
// immediately unless ctx is already done.
func GetAsync[T any](ctx context.Context, c *Cache, key string, def ...T) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return Get(c, key, def...), nil
}

// Remember returns the live value under key, or calls producer once, stores
// the result until now+ttl and returns it. Producer errors are returned
// unchanged and nothing is stored. The key is tracked even if producer fails.
func Remember[T any](c *Cache, key string, producer func() (T, error), ttl time.Duration) (T, error) {
	c.keys.Add(key)
	raw, err := c.store.GetOrCreate(key, func() (any, store.Policy, error) {
		p := store.Absolute(c.clock.Now().Add(ttl))
		v, err := producer()
		return v, p, err
	})
	return typed[T](key, raw, err)
}

// RememberAsync is Remember with a context-aware producer. The caller stops
// waiting when ctx is done; the producer keeps running for other waiters.
// A producer panic is re-raised on every waiting caller's goroutine.
func RememberAsync[T any](ctx context.Context, c *Cache, key string, producer func(context.Context) (T, error), ttl time.Duration) (T, error) {
	ctx, span := startSpan(ctx, "memo.remember", key)
	defer span.End()

	c.keys.Add(key)
	raw, err := c.store.GetOrCreateAsync(ctx, key, func(ctx context.Context) (any, store.Policy, error) {
		p := store.Absolute(c.clock.Now().Add(ttl))
		v, err := producer(ctx)
		return v, p, err
	})
	return endSpan[T](span, key, raw, err)
}

// Forever is Remember with an entry that never expires and is never evicted
// by size pressure. It lives until Forget or Flush.
func Forever[T any](c *Cache, key string, producer func() (T, error)) (T, error) {
	c.keys.Add(key)
	raw, err := c.store.GetOrCreate(key, func() (any, store.Policy, error) {
		v, err := producer()
		return v, store.Never(), err
	})
	return typed[T](key, raw, err)
}

// ForeverAsync is Forever with a context-aware producer.
func ForeverAsync[T any](ctx context.Context, c *Cache, key string, producer func(context.Context) (T, error)) (T, error) {
	ctx, span := startSpan(ctx, "memo.forever", key)
	defer span.End()

	c.keys.Add(key)
	raw, err := c.store.GetOrCreateAsync(ctx, key, func(ctx context.Context) (any, store.Policy, error) {
		v, err := producer(ctx)
		return v, store.Never(), err
	})
	return endSpan[T](span, key, raw, err)
}

func typed[T any](key string, raw any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if raw == nil {
		// A nil interface cannot be asserted to an interface T.
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T, want %T", ErrTypeMismatch, key, raw, zero)
	}
	return v, nil
}

func fallback[T any](def []T) T {
	if len(def) > 0 {
		return def[0]
	}
	var zero T
	return zero
}

func startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return telemetry.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
}

func endSpan[T any](span trace.Span, key string, raw any, err error) (T, error) {
	v, err := typed[T](key, raw, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}
