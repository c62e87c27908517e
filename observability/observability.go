// Package observability wires up logging and metrics the way
// stacklok-toolhive's pkg/logger does: a *slog.Logger built once at
// startup and injected into every collaborator, plus a small set of
// Prometheus gauges/counters/histograms registered on process start.
package observability

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// NewLogger builds a *slog.Logger from the LOG_LEVEL/LOG_FORMAT config
// keys. format "text" uses slog.NewTextHandler; anything else falls back
// to slog.NewJSONHandler, matching stacklok-toolhive's logger package note
// that "new code should inject *slog.Logger directly."
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// Metrics holds the process-lifetime Prometheus collectors Encapure
// exposes on /metrics.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	SearchErrors   *prometheus.CounterVec
	FreeSessions   prometheus.GaugeFunc
	FreePermits    prometheus.GaugeFunc
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
}

// NewMetrics constructs and registers every collector against reg.
// freeSessions/freePermits are read lazily from the inference.Manager at
// scrape time via the GaugeFunc callbacks, so Metrics never needs a
// reference cycle back into the manager's internals.
func NewMetrics(reg prometheus.Registerer, freeSessions, freePermits func() float64) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "encapure_http_requests_total",
			Help: "Count of HTTP requests, by route, method, and status class.",
		}, []string{"route", "method", "status"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "encapure_search_duration_seconds",
			Help:    "Latency of search requests end to end.",
			Buckets: prometheus.DefBuckets,
		}),
		SearchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "encapure_search_errors_total",
			Help: "Count of search requests that returned an error, by error kind.",
		}, []string{"kind"}),
		FreeSessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "encapure_inference_free_sessions",
			Help: "Number of transformer sessions currently idle in the pool.",
		}, freeSessions),
		FreePermits: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "encapure_inference_free_permits",
			Help: "Number of concurrency permits currently unheld.",
		}, freePermits),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encapure_embedding_cache_hits_total",
			Help: "Count of startups that loaded the embedding cache instead of recomputing it.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encapure_embedding_cache_misses_total",
			Help: "Count of startups that recomputed the embedding table (missing or corrupt cache).",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.SearchDuration,
		m.SearchErrors,
		m.FreeSessions,
		m.FreePermits,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}
