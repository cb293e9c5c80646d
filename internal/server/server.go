// Package server implements the HTTP admin surface of the remember daemon.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/remember/internal/memo"
	"github.com/eugener/remember/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Resolver looks up the addresses of a host. *dnscache.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Cache          *memo.Cache
	DefaultTTL     time.Duration      // used when PUT /v1/entries omits ttl
	Resolver       Resolver           // nil = /v1/resolve not mounted
	ResolveTTL     time.Duration      // lifetime of memoized lookups
	AdminToken     string             // "" = no auth on /v1
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no metrics
	MetricsHandler http.Handler       // served at /metrics when non-nil
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.AdminToken != "" {
			r.Use(s.authenticate)
		}
		r.Get("/v1/keys", s.handleListKeys)
		r.Get("/v1/keys/{key}", s.handleHasKey)
		r.Delete("/v1/keys/{key}", s.handleForgetKey)
		r.Post("/v1/flush", s.handleFlush)
		r.Get("/v1/entries/{key}", s.handleGetEntry)
		r.Put("/v1/entries/{key}", s.handlePutEntry)
		if deps.Resolver != nil {
			r.Get("/v1/resolve/{host}", s.handleResolve)
		}
	})

	return r
}

type server struct {
	deps Deps
}
