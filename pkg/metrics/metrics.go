// Package metrics exposes Prometheus instrumentation for ingestion, retention and the query API.
//
// Metrics Categories:
//   - Ingestion: runs by outcome, duration, observations written
//   - Retention: observations swept
//   - HTTP: requests by route and status, latency
//   - Cache: hit/miss by endpoint
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeConflict = "conflict"
)

var (
	// IngestRunsTotal counts ingestion runs by platform and outcome.
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialx_ingest_runs_total",
			Help: "Total number of snapshot ingestion runs",
		},
		[]string{"platform", "outcome"},
	)

	// IngestDuration tracks end-to-end ingestion latency including retries.
	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialx_ingest_duration_seconds",
			Help:    "Duration of snapshot ingestion runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"platform"},
	)

	// ObservationsIngestedTotal counts history rows written.
	ObservationsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialx_observations_ingested_total",
			Help: "Total number of metric observations written",
		},
		[]string{"platform"},
	)

	// SweepDeletedTotal counts history rows removed by the retention sweep.
	SweepDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialx_sweep_deleted_total",
			Help: "Total number of observations removed by retention sweeps",
		},
		[]string{"platform"},
	)

	// HTTPRequestsTotal counts API requests by route template and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialx_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks API latency by route template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialx_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// CacheRequestsTotal counts response cache lookups.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialx_cache_requests_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"endpoint", "result"},
	)
)

// RecordIngest records one ingestion run.
func RecordIngest(platform, outcome string, d time.Duration, observations int) {
	IngestRunsTotal.WithLabelValues(platform, outcome).Inc()
	IngestDuration.WithLabelValues(platform).Observe(d.Seconds())
	if observations > 0 {
		ObservationsIngestedTotal.WithLabelValues(platform).Add(float64(observations))
	}
}

// RecordSweep records rows removed by one sweep.
func RecordSweep(platform string, deleted int64) {
	if deleted > 0 {
		SweepDeletedTotal.WithLabelValues(platform).Add(float64(deleted))
	}
}

// RecordCache records a cache hit or miss.
func RecordCache(endpoint string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments every request routed by mux, labelled by route template so platform
// and username values never become label values.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
