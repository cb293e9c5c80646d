package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is a store that can reclaim expired entries in bulk.
type Sweepable interface {
	Sweep() int
}

// Counter is the subset of prometheus.Counter used by workers.
type Counter interface {
	Add(float64)
}

// Sweeper periodically reclaims expired entries so that keys written once
// and never read again do not hold memory until size eviction.
type Sweeper struct {
	store    Sweepable
	interval time.Duration
	swept    Counter // nil = not counted
}

// NewSweeper creates a Sweeper. swept may be nil.
func NewSweeper(store Sweepable, interval time.Duration, swept Counter) *Sweeper {
	return &Sweeper{store: store, interval: interval, swept: swept}
}

// Run sweeps every interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := w.store.Sweep()
			if n == 0 {
				continue
			}
			if w.swept != nil {
				w.swept.Add(float64(n))
			}
			slog.LogAttrs(ctx, slog.LevelDebug, "swept expired entries",
				slog.Int("count", n),
			)
		case <-ctx.Done():
			return nil
		}
	}
}
