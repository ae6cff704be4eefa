// Package metrics provides Prometheus metrics for memofn caches.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ostrenko/memofn/internal/lib/hooks"
)

// Metrics holds all Prometheus metrics for one cache.
type Metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Sets      prometheus.Counter
	Evictions prometheus.Counter
	Errors    prometheus.Counter
	Entries   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Hits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		Misses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),
		Sets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sets_total",
			Help:      "Total number of stored results",
		}),
		Evictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of entries removed by expiry, overflow, replacement, failure, or clearing",
		}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Total number of errors surfaced through the cache",
		}),
		Entries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of live cache entries",
		}),
	}
}

// Hooks returns a hook set that feeds these metrics. Install it on the cache
// whose traffic should be recorded.
func (m *Metrics) Hooks() *hooks.Hooks {
	return &hooks.Hooks{
		OnHit: func(string) error {
			m.Hits.Inc()
			return nil
		},
		OnMiss: func(string) error {
			m.Misses.Inc()
			return nil
		},
		OnSet: func(string) error {
			m.Sets.Inc()
			m.Entries.Inc()
			return nil
		},
		OnEvict: func(string) error {
			m.Evictions.Inc()
			m.Entries.Dec()
			return nil
		},
		LogError: func(error) {
			m.Errors.Inc()
		},
	}
}

// MetricsServer runs an HTTP server exposing a /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
