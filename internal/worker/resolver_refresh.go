package worker

import (
	"context"
	"time"
)

// Refreshable is a DNS cache that can re-resolve its known hosts.
// *dnscache.Resolver satisfies it.
type Refreshable interface {
	Refresh(clearUnused bool)
}

// ResolverRefresher periodically refreshes cached DNS records and drops
// hosts that were not looked up since the previous refresh.
type ResolverRefresher struct {
	resolver Refreshable
	interval time.Duration
}

// NewResolverRefresher creates a ResolverRefresher.
func NewResolverRefresher(resolver Refreshable, interval time.Duration) *ResolverRefresher {
	return &ResolverRefresher{resolver: resolver, interval: interval}
}

// Run refreshes every interval until ctx is cancelled.
func (w *ResolverRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.resolver.Refresh(true)
		case <-ctx.Done():
			return nil
		}
	}
}
