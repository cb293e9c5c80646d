// Package testutil provides configurable test fakes for the cache and its
// collaborators.
package testutil

import (
	"context"
	"sync/atomic"
)

// FakeResolver is a configurable host resolver for testing.
type FakeResolver struct {
	LookupFn func(ctx context.Context, host string) ([]string, error)
	calls    atomic.Int64
}

// LookupHost delegates to LookupFn or returns a loopback address.
func (f *FakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	f.calls.Add(1)
	if f.LookupFn != nil {
		return f.LookupFn(ctx, host)
	}
	return []string{"127.0.0.1"}, nil
}

// Calls returns how many lookups were performed.
func (f *FakeResolver) Calls() int64 { return f.calls.Load() }
