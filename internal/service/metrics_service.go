package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and
// calendar computations. A nil receiver is a valid no-op.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	eventsBuilt     *prometheus.CounterVec
	buildDuration   prometheus.Observer
	skippedSlots    prometheus.Counter
	slotWrites      *prometheus.CounterVec
	slotConflicts   prometheus.Counter
	exports         *prometheus.CounterVec
	auditInvalid    prometheus.Gauge
	auditOverlaps   prometheus.Gauge
	auditLastRun    prometheus.Gauge
}

// NewMetricsService registers the service's Prometheus collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	eventsBuilt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_events_built_total",
		Help: "Calendar events produced by the view builder",
	}, []string{"type"})

	buildDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "calendar_build_duration_seconds",
		Help:    "Time spent loading and building a calendar view",
		Buckets: prometheus.DefBuckets,
	})

	skippedSlots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendar_skipped_slots_total",
		Help: "Weekly slots skipped because of data integrity problems",
	})

	slotWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_slot_writes_total",
		Help: "Slot write attempts by operation and outcome",
	}, []string{"operation", "outcome"})

	slotConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendar_slot_conflicts_total",
		Help: "Slot writes rejected because of an overlapping slot",
	})

	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_exports_total",
		Help: "Calendar exports rendered by format",
	}, []string{"format"})

	auditInvalid := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "calendar_audit_invalid_slots",
		Help: "Stored slots failing integrity validation at the last audit",
	})

	auditOverlaps := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "calendar_audit_overlapping_pairs",
		Help: "Overlapping stored slot pairs found at the last audit",
	})

	auditLastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "calendar_audit_last_run_timestamp_seconds",
		Help: "Unix time of the last completed slot audit",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		eventsBuilt, buildDuration, skippedSlots, slotWrites, slotConflicts, exports,
		auditInvalid, auditOverlaps, auditLastRun, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		eventsBuilt:     eventsBuilt,
		buildDuration:   buildDuration,
		skippedSlots:    skippedSlots,
		slotWrites:      slotWrites,
		slotConflicts:   slotConflicts,
		exports:         exports,
		auditInvalid:    auditInvalid,
		auditOverlaps:   auditOverlaps,
		auditLastRun:    auditLastRun,
	}
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

// Registry exposes the collector registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveCalendarBuild records one computed calendar view.
func (m *MetricsService) ObserveCalendarBuild(classes, deadlines, skipped int, duration time.Duration) {
	if m == nil {
		return
	}
	m.eventsBuilt.WithLabelValues("CLASS").Add(float64(classes))
	m.eventsBuilt.WithLabelValues("ASSIGNMENT").Add(float64(deadlines))
	m.skippedSlots.Add(float64(skipped))
	m.buildDuration.Observe(duration.Seconds())
}

// RecordSlotWrite counts a slot mutation attempt. Conflicts are also counted
// separately.
func (m *MetricsService) RecordSlotWrite(operation, outcome string) {
	if m == nil {
		return
	}
	m.slotWrites.WithLabelValues(operation, outcome).Inc()
	if outcome == slotOutcomeConflict {
		m.slotConflicts.Inc()
	}
}

// RecordExport counts a rendered export.
func (m *MetricsService) RecordExport(format string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format).Inc()
}

// ObserveAudit publishes the result of a slot integrity audit.
func (m *MetricsService) ObserveAudit(invalid, overlapping int, at time.Time) {
	if m == nil {
		return
	}
	m.auditInvalid.Set(float64(invalid))
	m.auditOverlaps.Set(float64(overlapping))
	m.auditLastRun.Set(float64(at.Unix()))
}
