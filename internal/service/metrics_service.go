package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded per resource.
const (
	OutcomeFetched  = "fetched"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for the ops API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	fetchOutcomes   *prometheus.CounterVec
	reservations    *prometheus.CounterVec
	verdicts        *prometheus.CounterVec
	triggers        *prometheus.CounterVec
	statsDuration   *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	fetchCount           uint64
	fetchErrorCount      uint64
	duplicateCount       uint64
	triggerCount         uint64
	statsRunCount        uint64
}

// MetricsSnapshot is a point-in-time summary of pipeline activity.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	FetchesTotal             uint64    `json:"fetchesTotal"`
	FetchErrors              uint64    `json:"fetchErrors"`
	DuplicateReservations    uint64    `json:"duplicateReservations"`
	TriggersPublished        uint64    `json:"triggersPublished"`
	StatsRuns                uint64    `json:"statsRuns"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	fetchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tourney_fetch_outcomes_total",
		Help: "Upstream fetches by resource and outcome",
	}, []string{"resource", "outcome"})

	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tourney_dedup_reservations_total",
		Help: "Fetch reservation attempts by resource and result",
	}, []string{"resource", "result"})

	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tourney_automation_verdicts_total",
		Help: "Verification verdicts assigned by entity level",
	}, []string{"level", "verdict"})

	triggers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tourney_automation_triggers_total",
		Help: "Completion checks by result",
	}, []string{"result"})

	statsDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tourney_stats_run_duration_seconds",
		Help:    "Duration of tournament stats runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, fetchOutcomes, reservations, verdicts, triggers, statsDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		fetchOutcomes:   fetchOutcomes,
		reservations:    reservations,
		verdicts:        verdicts,
		triggers:        triggers,
		statsDuration:   statsDuration,
	}
}

// Registry exposes the registry so the broker can attach its router metrics.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordFetch counts one fetch outcome.
func (m *MetricsService) RecordFetch(resource, outcome string) {
	if m == nil {
		return
	}
	m.fetchOutcomes.WithLabelValues(resource, outcome).Inc()
	atomic.AddUint64(&m.fetchCount, 1)
	if outcome == OutcomeError {
		atomic.AddUint64(&m.fetchErrorCount, 1)
	}
}

// RecordReservation counts reservation attempts.
func (m *MetricsService) RecordReservation(resource string, reserved bool) {
	if m == nil {
		return
	}
	result := "reserved"
	if !reserved {
		result = "duplicate"
		atomic.AddUint64(&m.duplicateCount, 1)
	}
	m.reservations.WithLabelValues(resource, result).Inc()
}

// RecordVerdicts adds n verdicts for a level.
func (m *MetricsService) RecordVerdicts(level, verdict string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.verdicts.WithLabelValues(level, verdict).Add(float64(n))
}

// RecordTrigger counts one completion check result.
func (m *MetricsService) RecordTrigger(result string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(result).Inc()
	if result == TriggerPublished {
		atomic.AddUint64(&m.triggerCount, 1)
	}
}

// ObserveStatsRun records the duration of one stats run.
func (m *MetricsService) ObserveStatsRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.statsDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	atomic.AddUint64(&m.statsRunCount, 1)
}

// Snapshot returns aggregated counters for the ops summary endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		FetchesTotal:             atomic.LoadUint64(&m.fetchCount),
		FetchErrors:              atomic.LoadUint64(&m.fetchErrorCount),
		DuplicateReservations:    atomic.LoadUint64(&m.duplicateCount),
		TriggersPublished:        atomic.LoadUint64(&m.triggerCount),
		StatsRuns:                atomic.LoadUint64(&m.statsRunCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
