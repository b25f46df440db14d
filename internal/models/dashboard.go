package models

import "time"

// AdminDashboard aggregates request counts for the admin overview.
type AdminDashboard struct {
	TotalRequests  int            `json:"total_requests"`
	ByStatus       map[Status]int `json:"by_status"`
	PendingByStage map[Stage]int  `json:"pending_by_stage"`
	TotalStudents  int            `json:"total_students"`
	Eligible       int            `json:"eligible_students"`
	GeneratedAt    time.Time      `json:"generated_at"`
	System         *SystemMetrics `json:"system,omitempty"`
}

// SystemMetrics is a lightweight snapshot of process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	TransitionsTotal         uint64    `json:"transitions_total"`
	EmailsFailed             uint64    `json:"emails_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
