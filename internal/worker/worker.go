// Package worker runs the daemon's periodic maintenance: sweeping expired
// cache entries and refreshing memoized DNS records.
package worker

import "context"

// Worker is a long-running background task. Run blocks until ctx is
// cancelled, returning nil, or until the task fails.
type Worker interface {
	Run(ctx context.Context) error
}
