package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/remember/internal/config"
	"github.com/eugener/remember/internal/memo"
	"github.com/eugener/remember/internal/server"
	"github.com/eugener/remember/internal/store"
	"github.com/eugener/remember/internal/telemetry"
	"github.com/eugener/remember/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting remember", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Telemetry
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
		reg            *prometheus.Registry
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
			Endpoint:   cfg.Telemetry.Tracing.Endpoint,
			SampleRate: cfg.Telemetry.Tracing.SampleRate,
			Version:    version,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Store and cache
	memCfg := store.MemoryConfig{MaxEntries: cfg.Cache.MaxEntries}
	if metrics != nil {
		memCfg.Observer = metrics
	}
	mem, err := store.NewMemory(memCfg)
	if err != nil {
		return err
	}
	cache := memo.New(mem, nil)
	if reg != nil {
		telemetry.RegisterTrackedKeys(reg, cache.Len)
	}

	if err := config.Bootstrap(cfg, cache); err != nil {
		return err
	}

	resolver := &dnscache.Resolver{}

	// Background workers
	var workers []worker.Worker
	if cfg.Cache.SweepInterval > 0 {
		var swept worker.Counter
		if metrics != nil {
			swept = metrics.SweptEntries
		}
		workers = append(workers, worker.NewSweeper(mem, cfg.Cache.SweepInterval, swept))
	}
	if cfg.Resolver.RefreshInterval > 0 {
		workers = append(workers, worker.NewResolverRefresher(resolver, cfg.Resolver.RefreshInterval))
	}
	var workerErr chan error // nil blocks forever when there is nothing to run
	if len(workers) > 0 {
		workerErr = make(chan error, 1)
		go func() { workerErr <- worker.NewRunner(workers...).Run(ctx) }()
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Cache:          cache,
		DefaultTTL:     cfg.Cache.DefaultTTL,
		Resolver:       resolver,
		ResolveTTL:     cfg.Resolver.TTL,
		AdminToken:     cfg.Auth.AdminToken,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("remember ready", "addr", cfg.Server.Addr, "seeds", len(cfg.Seeds))

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	case err := <-workerErr:
		// Workers only return nil once ctx is cancelled.
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("remember stopped", "tracked_keys", cache.Len())
	return nil
}
