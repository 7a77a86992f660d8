// Package scrape defines the domain model and the contracts between the
// producer, the work queue, the consumers, and the coordinator. Backend
// packages implement these interfaces; the pipeline packages depend only
// on what is declared here.
package scrape

import (
	"fmt"
	"time"
)

// ItemStatus is the lifecycle state of a work item in queue_state.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusQueued     ItemStatus = "queued"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// WorkerStatus classifies a worker's self-reported health.
type WorkerStatus string

const (
	WorkerHealthy  WorkerStatus = "healthy"
	WorkerDegraded WorkerStatus = "degraded"
	WorkerCritical WorkerStatus = "critical"
)

// WorkItem is one scrape task: a geography against a source. It travels
// through the queue as JSON; Attempt counts deliveries and starts at 0.
type WorkItem struct {
	GeoCode     string    `json:"geo_code"`
	RegionCode  string    `json:"region_code"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	Priority    int       `json:"priority"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Attempt     int       `json:"attempt"`
}

// Key returns the item's identity in the state store.
func (w WorkItem) Key() ItemKey {
	return ItemKey{
		GeoCode:    w.GeoCode,
		RegionCode: w.RegionCode,
		Source:     w.Source,
		Category:   w.Category,
	}
}

// String renders the key for logs.
func (w WorkItem) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", w.Source, w.RegionCode, w.GeoCode, w.Category)
}

// ItemKey is the composite identity of a queue_state row.
type ItemKey struct {
	GeoCode    string
	RegionCode string
	Source     string
	Category   string
}

// QueueState is one row of per-item lifecycle state.
type QueueState struct {
	Key             ItemKey
	Status          ItemStatus
	Priority        int
	QueuedAt        time.Time
	LastAttemptedAt time.Time
	UpdatedAt       time.Time
}

// QueueCounters is the aggregate counter row. Counters only ever grow;
// depth is derived.
type QueueCounters struct {
	TotalItems     int64
	ProcessedItems int64
	FailedItems    int64
}

// Depth estimates outstanding items. Floored at zero because failed
// attempts are counted per delivery and can overshoot the total.
func (c QueueCounters) Depth() int64 {
	d := c.TotalItems - c.ProcessedItems - c.FailedItems
	if d < 0 {
		return 0
	}
	return d
}

// RateLimitState is the shared per-source limiter row.
type RateLimitState struct {
	Source            string
	RequestsPerSecond float64
	LastRequestAt     time.Time
	RequestCount      int64
}

// WorkerHealth is one worker's heartbeat row.
type WorkerHealth struct {
	WorkerID        string       `json:"worker_id"`
	WorkerType      string       `json:"worker_type"`
	Status          WorkerStatus `json:"status"`
	LastHeartbeat   time.Time    `json:"last_heartbeat"`
	ItemsProcessed  int64        `json:"items_processed"`
	ErrorsCount     int64        `json:"errors_count"`
	AvgProcessingMs float64      `json:"avg_processing_ms"`
	Context         string       `json:"context,omitempty"`
}

// ProcessingLog is one successful-attempt audit row.
type ProcessingLog struct {
	WorkerID   string
	Source     string
	RegionCode string
	GeoCode    string
	Records    int
	DurationMs int64
	CreatedAt  time.Time
}

// ErrorLog is one failed-attempt row. The coordinator also writes its
// alerts here, with Severity set and retry fields zero.
type ErrorLog struct {
	WorkerID   string
	Source     string
	Message    string
	Severity   string
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
}

// Licensee is one extracted record. Identity is license number plus
// region when a license number exists, otherwise source plus source ID.
type Licensee struct {
	LicenseNumber string    `json:"license_number,omitempty"`
	RegionCode    string    `json:"region_code"`
	Name          string    `json:"name"`
	Company       string    `json:"company,omitempty"`
	Address       string    `json:"address,omitempty"`
	City          string    `json:"city,omitempty"`
	Zip           string    `json:"zip,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Category      string    `json:"category"`
	Source        string    `json:"source"`
	SourceID      string    `json:"source_id,omitempty"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// HourlyErrorStats is the error/processed tally over a window.
type HourlyErrorStats struct {
	Errors    int64
	Processed int64
}

// Rate returns errors per completed item, zero when nothing completed.
func (s HourlyErrorStats) Rate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Processed)
}

// Alert severities, from the coordinator's rules.
const (
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is one coordinator finding for a tick.
type Alert struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// WorkerSummary aggregates the worker fleet for a snapshot.
type WorkerSummary struct {
	Total    int     `json:"total"`
	Healthy  int     `json:"healthy"`
	Degraded int     `json:"degraded"`
	Stale    int     `json:"stale"`
	AvgMs    float64 `json:"avg_processing_ms"`
}

// HealthSnapshot is the coordinator's view of the pipeline at one tick.
type HealthSnapshot struct {
	Score      float64       `json:"score"`
	Label      WorkerStatus  `json:"label"`
	QueueDepth int64         `json:"queue_depth"`
	ErrorRate  float64       `json:"error_rate"`
	Workers    WorkerSummary `json:"workers"`
	Alerts     []Alert       `json:"alerts,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// FetchRequest asks a fetcher for one document.
type FetchRequest struct {
	URL           string
	WaitCondition string
	Timeout       time.Duration
}

// FetchResponse is the fetched document plus metadata.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}
