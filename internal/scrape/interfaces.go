package scrape

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound signals a missing row; callers branch on it with errors.Is.
var ErrNotFound = errors.New("not found")

// StateStore is the persistence contract shared by every pipeline stage.
// Implementations must make UpsertQueueState and UpsertLicensees safe to
// replay, because the queue delivers at least once.
type StateStore interface {
	GetQueueState(ctx context.Context, key ItemKey) (QueueState, error)
	UpsertQueueState(ctx context.Context, state QueueState) error
	GetQueueCounters(ctx context.Context) (QueueCounters, error)
	IncrementQueueCounters(ctx context.Context, total, processed, failed int64) error
	ReapStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error)

	GetRateLimit(ctx context.Context, source string) (RateLimitState, error)
	UpdateRateLimit(ctx context.Context, state RateLimitState) error

	UpsertWorkerHealth(ctx context.Context, health WorkerHealth) error
	ListWorkerHealth(ctx context.Context) ([]WorkerHealth, error)

	AppendProcessingLog(ctx context.Context, entry ProcessingLog) error
	AppendErrorLog(ctx context.Context, entry ErrorLog) error
	HourlyErrorStats(ctx context.Context, since time.Time) (HourlyErrorStats, error)
	LastProcessedAt(ctx context.Context) (time.Time, error)

	UpsertLicensees(ctx context.Context, records []Licensee) (int64, error)
}

// Queue accepts work items for later delivery.
type Queue interface {
	Submit(ctx context.Context, item WorkItem) error
}

// Delivery is one received work item. Exactly one of Ack or Nack must be
// called: Ack settles the item, Nack requests redelivery with the attempt
// count bumped.
type Delivery struct {
	Item WorkItem
	Ack  func()
	Nack func()
}

// DeliveryQueue is the consumer side of the work queue.
type DeliveryQueue interface {
	Queue
	Receive(ctx context.Context) (Delivery, error)
}

// Fetcher retrieves one document from a source.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore archives raw documents and run summaries. PutObject returns
// the stored object's full path.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, body io.Reader) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints identifiers for workers and runs.
type IDGenerator interface {
	NewID() string
}
