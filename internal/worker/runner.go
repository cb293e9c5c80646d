package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner supervises the daemon's maintenance workers. The first failure
// cancels the rest.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Run blocks until every worker has returned and reports the first error.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		slog.Info("worker started", "type", name)
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func workerName(w Worker) string {
	switch w.(type) {
	case *Sweeper:
		return "sweeper"
	case *ResolverRefresher:
		return "resolver_refresh"
	default:
		return "unknown"
	}
}
