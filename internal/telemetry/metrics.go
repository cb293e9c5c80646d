// Package telemetry provides observability primitives for the remember daemon.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the daemon. It also satisfies
// store.Observer, so the backing store can report cache events directly.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheLoads      prometheus.Counter
	CacheLoadErrors prometheus.Counter
	CacheEvictions  prometheus.Counter
	SweptEntries    prometheus.Counter
	Flushes         prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "remember",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "remember",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "cache_hits_total",
			Help:      "Total store lookups that found a live entry.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "cache_misses_total",
			Help:      "Total store lookups that found nothing live.",
		}),

		CacheLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "cache_loads_total",
			Help:      "Total producer invocations that stored a value.",
		}),

		CacheLoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "cache_load_errors_total",
			Help:      "Total producer invocations that failed.",
		}),

		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "cache_evictions_total",
			Help:      "Total entries evicted by size pressure.",
		}),

		SweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "swept_entries_total",
			Help:      "Total expired entries reclaimed by the sweeper.",
		}),

		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remember",
			Name:      "flushes_total",
			Help:      "Total cache flushes.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.CacheHits,
		m.CacheMisses,
		m.CacheLoads,
		m.CacheLoadErrors,
		m.CacheEvictions,
		m.SweptEntries,
		m.Flushes,
	)

	return m
}

// RegisterTrackedKeys exposes the size of a cache's tracked-key set as a gauge.
func RegisterTrackedKeys(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "remember",
		Name:      "tracked_keys",
		Help:      "Number of keys tracked by the memoizing cache.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) CacheHit()       { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss()      { m.CacheMisses.Inc() }
func (m *Metrics) CacheLoad()      { m.CacheLoads.Inc() }
func (m *Metrics) CacheLoadError() { m.CacheLoadErrors.Inc() }
func (m *Metrics) CacheEvict()     { m.CacheEvictions.Inc() }
