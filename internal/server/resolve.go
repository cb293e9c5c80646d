package server

import (
	"context"
	"fmt"
	"net/http"

	remember "github.com/eugener/remember/internal"
	"github.com/eugener/remember/internal/memo"
)

// resolveKeyPrefix namespaces memoized lookups away from client entries.
const resolveKeyPrefix = "dns:"

type resolveResponse struct {
	Host  string   `json:"host"`
	Addrs []string `json:"addrs"`
}

// handleResolve returns the addresses of {host}, memoized for ResolveTTL.
// Concurrent requests for the same host share one lookup.
func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	host, err := keyParam(r, "host")
	if err != nil {
		writeError(w, r, err)
		return
	}

	addrs, err := memo.RememberAsync(r.Context(), s.deps.Cache, resolveKeyPrefix+host,
		func(ctx context.Context) ([]string, error) {
			addrs, err := s.deps.Resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", remember.ErrUpstream, host, err)
			}
			return addrs, nil
		}, s.deps.ResolveTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Host: host, Addrs: addrs})
}
