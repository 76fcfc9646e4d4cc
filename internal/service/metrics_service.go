package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
)

// MetricsService owns the Prometheus registry and keeps lightweight counters for snapshots.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	sessionsGenerated  prometheus.Counter
	sessionsSkipped    prometheus.Counter
	checkIns           *prometheus.CounterVec
	sessionsClosed     prometheus.Counter
	absencesFinalized  prometheus.Counter
	correctionsDecided *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	generatedCount       uint64
	skippedCount         uint64
	checkInCount         uint64
	closedCount          uint64
	finalizedCount       uint64
	decidedCount         uint64

	queueMu sync.Mutex
	queues  map[string]func() jobs.Stats
}

// NewMetricsService registers HTTP, cache, database and attendance collectors.
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
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_hits_total", Help: "Total cache hits"})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_misses_total", Help: "Total cache misses"})

	sessionsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_generated_total",
		Help: "Class sessions created by recurrence generation",
	})
	sessionsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_skipped_total",
		Help: "Generated candidates skipped because the day already had a session",
	})
	checkIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Student check-in attempts",
	}, []string{"method", "result"})
	sessionsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_closed_total",
		Help: "Sessions closed by instructors",
	})
	absencesFinalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_absences_finalized_total",
		Help: "Pending records converted to ABSENT on close",
	})
	correctionsDecided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "corrections_decided_total",
		Help: "Excuse and appeal decisions",
	}, []string{"kind", "decision"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		sessionsGenerated, sessionsSkipped, checkIns, sessionsClosed, absencesFinalized, correctionsDecided, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		sessionsGenerated:  sessionsGenerated,
		sessionsSkipped:    sessionsSkipped,
		checkIns:           checkIns,
		sessionsClosed:     sessionsClosed,
		absencesFinalized:  absencesFinalized,
		correctionsDecided: correctionsDecided,
		queues:             make(map[string]func() jobs.Stats),
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

// ObserveHTTPRequest records request metrics.
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

// RecordCacheOperation records a cache hit or miss and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RegisterQueue exports a worker queue's outcome counters as
// background_jobs_total{queue,outcome}. Registering a name twice is a no-op.
func (m *MetricsService) RegisterQueue(name string, stats func() jobs.Stats) {
	if m == nil || stats == nil {
		return
	}
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if _, exists := m.queues[name]; exists {
		return
	}
	m.queues[name] = stats

	outcomes := map[string]func(jobs.Stats) uint64{
		"processed": func(s jobs.Stats) uint64 { return s.Processed },
		"retried":   func(s jobs.Stats) uint64 { return s.Retried },
		"failed":    func(s jobs.Stats) uint64 { return s.Failed },
		"dropped":   func(s jobs.Stats) uint64 { return s.Dropped },
	}
	for outcome, pick := range outcomes {
		pick := pick
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "background_jobs_total",
			Help:        "Background job outcomes per queue",
			ConstLabels: prometheus.Labels{"queue": name, "outcome": outcome},
		}, func() float64 { return float64(pick(stats())) }))
	}
}

// RecordGeneration counts sessions created and skipped by one generation run.
func (m *MetricsService) RecordGeneration(created, skipped int) {
	if m == nil {
		return
	}
	m.sessionsGenerated.Add(float64(created))
	m.sessionsSkipped.Add(float64(skipped))
	atomic.AddUint64(&m.generatedCount, uint64(created))
	atomic.AddUint64(&m.skippedCount, uint64(skipped))
}

// RecordCheckIn counts a check-in attempt by method and outcome label.
func (m *MetricsService) RecordCheckIn(method models.CheckInMethod, result string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(string(method), result).Inc()
	atomic.AddUint64(&m.checkInCount, 1)
}

// RecordSessionClose counts a close and the absences it finalized.
func (m *MetricsService) RecordSessionClose(finalized int64) {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
	m.absencesFinalized.Add(float64(finalized))
	atomic.AddUint64(&m.closedCount, 1)
	atomic.AddUint64(&m.finalizedCount, uint64(finalized))
}

// RecordCorrectionDecision counts an excuse or appeal decision.
func (m *MetricsService) RecordCorrectionDecision(kind models.CorrectionKind, decision models.CorrectionStatus) {
	if m == nil {
		return
	}
	m.correctionsDecided.WithLabelValues(string(kind), string(decision)).Inc()
	atomic.AddUint64(&m.decidedCount, 1)
}

// Snapshot returns aggregated counters for the metrics summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if lookups := hits + misses; lookups > 0 {
		cacheRatio = float64(hits) / float64(lookups)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	queues := make(map[string]models.QueueMetrics)
	m.queueMu.Lock()
	for name, stats := range m.queues {
		st := stats()
		queues[name] = models.QueueMetrics{Processed: st.Processed, Retried: st.Retried, Failed: st.Failed, Dropped: st.Dropped}
	}
	m.queueMu.Unlock()

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		SessionsGenerated:        atomic.LoadUint64(&m.generatedCount),
		SessionsSkipped:          atomic.LoadUint64(&m.skippedCount),
		CheckIns:                 atomic.LoadUint64(&m.checkInCount),
		SessionsClosed:           atomic.LoadUint64(&m.closedCount),
		AbsencesFinalized:        atomic.LoadUint64(&m.finalizedCount),
		CorrectionsDecided:       atomic.LoadUint64(&m.decidedCount),
		Queues:                   queues,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
