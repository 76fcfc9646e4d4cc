package models

import "time"

// QueueMetrics counts background job outcomes of one queue.
type QueueMetrics struct {
	Processed uint64 `json:"processed"`
	Retried   uint64 `json:"retried"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// SystemMetrics is a JSON-friendly summary of process counters.
type SystemMetrics struct {
	RequestsTotal            uint64                  `json:"requests_total"`
	AverageRequestDurationMs float64                 `json:"average_request_duration_ms"`
	CacheHits                uint64                  `json:"cache_hits"`
	CacheMisses              uint64                  `json:"cache_misses"`
	CacheHitRatio            float64                 `json:"cache_hit_ratio"`
	SessionsGenerated        uint64                  `json:"sessions_generated"`
	SessionsSkipped          uint64                  `json:"sessions_skipped"`
	CheckIns                 uint64                  `json:"check_ins"`
	SessionsClosed           uint64                  `json:"sessions_closed"`
	AbsencesFinalized        uint64                  `json:"absences_finalized"`
	CorrectionsDecided       uint64                  `json:"corrections_decided"`
	Queues                   map[string]QueueMetrics `json:"queues,omitempty"`
	Goroutines               int                     `json:"goroutines"`
	GeneratedAt              time.Time               `json:"generated_at"`
}
