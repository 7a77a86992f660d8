// Package consumer processes delivered work items: fetch, archive,
// parse, persist, and settle each delivery with an ack or a nack.
package consumer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/parse"
	"github.com/leadharvest/leadscraper/internal/ratelimit"
	"github.com/leadharvest/leadscraper/internal/scrape"
	"github.com/leadharvest/leadscraper/internal/sources"
	"github.com/leadharvest/leadscraper/internal/telemetry"
)

// Config holds the per-worker knobs.
type Config struct {
	WorkerID      string
	MaxRetries    int
	FetchTimeout  time.Duration
	StoragePrefix string
	ContentType   string
}

// BatchSummary tallies one ProcessBatch call.
type BatchSummary struct {
	Processed int `json:"processed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// Consumer works deliveries one at a time. Every state write is an
// upsert or an append, so a redelivered item replays cleanly.
type Consumer struct {
	store     scrape.StateStore
	plain     scrape.Fetcher
	rendering scrape.Fetcher
	limiter   *ratelimit.Limiter
	parsers   *parse.Registry
	catalog   *sources.Catalog
	blobs     scrape.BlobStore
	clock     scrape.Clock
	metrics   *telemetry.Metrics
	cfg       Config
	logger    *zap.Logger

	itemsProcessed int64
	errorsCount    int64
	avgMs          float64
	status         scrape.WorkerStatus
}

// New builds a Consumer. The rendering fetcher may be nil; sources that
// need it then fail their items instead of silently degrading to the
// plain fetcher.
func New(store scrape.StateStore, plain, rendering scrape.Fetcher, limiter *ratelimit.Limiter, parsers *parse.Registry, catalog *sources.Catalog, blobs scrape.BlobStore, clock scrape.Clock, metrics *telemetry.Metrics, cfg Config, logger *zap.Logger) *Consumer {
	return &Consumer{
		store:     store,
		plain:     plain,
		rendering: rendering,
		limiter:   limiter,
		parsers:   parsers,
		catalog:   catalog,
		blobs:     blobs,
		clock:     clock,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.With(zap.String("worker_id", cfg.WorkerID)),
		status:    scrape.WorkerHealthy,
	}
}

// Run pulls deliveries until the context ends.
func (c *Consumer) Run(ctx context.Context, queue scrape.DeliveryQueue) error {
	for {
		delivery, err := queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		c.process(ctx, delivery)
	}
}

// ProcessBatch works a slice of deliveries and tallies the outcomes.
func (c *Consumer) ProcessBatch(ctx context.Context, deliveries []scrape.Delivery) BatchSummary {
	var summary BatchSummary
	for _, d := range deliveries {
		switch c.process(ctx, d) {
		case outcomeProcessed:
			summary.Processed++
		case outcomeRetried:
			summary.Retried++
		case outcomeFailed:
			summary.Failed++
		}
	}
	return summary
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeRetried
	outcomeFailed
)

// terminalError marks failures that redelivery cannot fix.
type terminalError struct {
	err error
}

func (e terminalError) Error() string { return e.err.Error() }
func (e terminalError) Unwrap() error { return e.err }

func terminal(err error) error { return terminalError{err: err} }

// process runs one delivery through the pipeline and settles it.
func (c *Consumer) process(ctx context.Context, delivery scrape.Delivery) outcome {
	item := delivery.Item
	logger := c.logger.With(zap.Stringer("item", item), zap.Int("attempt", item.Attempt))
	start := c.clock.Now()

	records, err := c.processItem(ctx, item, logger)
	elapsed := c.clock.Now().Sub(start)
	if c.metrics != nil {
		c.metrics.ItemDuration.WithLabelValues(item.Source).Observe(elapsed.Seconds())
	}

	if err == nil {
		c.recordSuccess(ctx, item, records, elapsed, logger)
		delivery.Ack()
		return outcomeProcessed
	}

	// Attempt counts prior failures; the budget allows MaxRetries
	// redeliveries past the first attempt.
	var term terminalError
	exhausted := errors.As(err, &term) || item.Attempt >= c.cfg.MaxRetries
	c.recordFailure(ctx, item, err, exhausted, logger)
	if exhausted {
		// Redelivering would burn the source budget for nothing.
		delivery.Ack()
		return outcomeFailed
	}
	delivery.Nack()
	return outcomeRetried
}

// processItem is the fetch-archive-parse-persist sequence. It returns
// the number of new records, or an error (wrapped terminal when retrying
// cannot help).
func (c *Consumer) processItem(ctx context.Context, item scrape.WorkItem, logger *zap.Logger) (int64, error) {
	now := c.clock.Now()
	if err := c.store.UpsertQueueState(ctx, scrape.QueueState{
		Key:             item.Key(),
		Status:          scrape.StatusProcessing,
		Priority:        item.Priority,
		QueuedAt:        item.ScheduledAt,
		LastAttemptedAt: now,
		UpdatedAt:       now,
	}); err != nil {
		return 0, fmt.Errorf("mark processing: %w", err)
	}

	src, ok := c.catalog.Get(item.Source)
	if !ok {
		return 0, terminal(fmt.Errorf("unknown source %q", item.Source))
	}

	parser, err := c.parsers.For(item.Source, item.RegionCode)
	if err != nil {
		// No parser will ever appear for this item; fail it for good.
		return 0, terminal(err)
	}

	delay, err := c.limiter.Wait(ctx, item.Source, src.RequestsPerSecond)
	if err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}
	if c.metrics != nil && delay > 0 {
		c.metrics.RateLimitDelay.WithLabelValues(item.Source).Observe(delay.Seconds())
	}

	resp, err := c.fetch(ctx, item, src)
	if err != nil {
		return 0, err
	}

	c.archive(ctx, item, resp.Body, logger)

	parsed, err := parser.Parse(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", item.Source, err)
	}
	for i := range parsed {
		parsed[i].Source = item.Source
		parsed[i].RegionCode = item.RegionCode
		parsed[i].Category = item.Category
		parsed[i].ScrapedAt = c.clock.Now()
	}

	inserted, err := c.store.UpsertLicensees(ctx, parsed)
	if err != nil {
		return 0, fmt.Errorf("persist licensees: %w", err)
	}
	logger.Info("item scraped",
		zap.Int("parsed", len(parsed)),
		zap.Int64("inserted", inserted),
	)
	return inserted, nil
}

func (c *Consumer) fetch(ctx context.Context, item scrape.WorkItem, src sources.Source) (scrape.FetchResponse, error) {
	fetcher := c.plain
	if src.Render {
		if c.rendering == nil {
			return scrape.FetchResponse{}, terminal(fmt.Errorf("source %s needs rendering but none is configured", src.Code))
		}
		fetcher = c.rendering
	}
	resp, err := fetcher.Fetch(ctx, scrape.FetchRequest{
		URL:           src.TargetURL(item.RegionCode, item.GeoCode),
		WaitCondition: src.WaitCondition,
		Timeout:       c.cfg.FetchTimeout,
	})
	if err != nil {
		return scrape.FetchResponse{}, fmt.Errorf("fetch: %w", err)
	}
	return resp, nil
}

// archive stores the raw page. A miss costs the audit trail, not the
// item, so failures only log.
func (c *Consumer) archive(ctx context.Context, item scrape.WorkItem, body []byte, logger *zap.Logger) {
	if c.blobs == nil {
		return
	}
	path := fmt.Sprintf("%s/%s/%s/%s/%s.html",
		c.cfg.StoragePrefix, item.Source, item.RegionCode, item.GeoCode,
		c.clock.Now().Format("20060102T150405Z"),
	)
	if _, err := c.blobs.PutObject(ctx, path, c.cfg.ContentType, bytes.NewReader(body)); err != nil {
		logger.Warn("archive raw page failed", zap.Error(err))
	}
}

func (c *Consumer) recordSuccess(ctx context.Context, item scrape.WorkItem, records int64, elapsed time.Duration, logger *zap.Logger) {
	now := c.clock.Now()
	if err := c.store.UpsertQueueState(ctx, scrape.QueueState{
		Key:             item.Key(),
		Status:          scrape.StatusCompleted,
		Priority:        item.Priority,
		QueuedAt:        item.ScheduledAt,
		LastAttemptedAt: now,
		UpdatedAt:       now,
	}); err != nil {
		logger.Warn("mark completed failed", zap.Error(err))
	}
	if err := c.store.IncrementQueueCounters(ctx, 0, 1, 0); err != nil {
		logger.Warn("counter increment failed", zap.Error(err))
	}
	if err := c.store.AppendProcessingLog(ctx, scrape.ProcessingLog{
		WorkerID:   c.cfg.WorkerID,
		Source:     item.Source,
		RegionCode: item.RegionCode,
		GeoCode:    item.GeoCode,
		Records:    int(records),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  now,
	}); err != nil {
		logger.Warn("processing log append failed", zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.ItemsTotal.WithLabelValues(item.Source, "processed").Inc()
		c.metrics.LicenseesExtracted.WithLabelValues(item.Source).Add(float64(records))
	}

	c.itemsProcessed++
	c.avgMs += (float64(elapsed.Milliseconds()) - c.avgMs) / float64(c.itemsProcessed)
	c.status = scrape.WorkerHealthy
	c.heartbeat(ctx, logger, fmt.Sprintf("processed %s", item.String()))
}

func (c *Consumer) recordFailure(ctx context.Context, item scrape.WorkItem, cause error, exhausted bool, logger *zap.Logger) {
	now := c.clock.Now()
	logger.Warn("item failed", zap.Bool("exhausted", exhausted), zap.Error(cause))

	if err := c.store.UpsertQueueState(ctx, scrape.QueueState{
		Key:             item.Key(),
		Status:          scrape.StatusFailed,
		Priority:        item.Priority,
		QueuedAt:        item.ScheduledAt,
		LastAttemptedAt: now,
		UpdatedAt:       now,
	}); err != nil {
		logger.Warn("mark failed failed", zap.Error(err))
	}
	if err := c.store.IncrementQueueCounters(ctx, 0, 0, 1); err != nil {
		logger.Warn("counter increment failed", zap.Error(err))
	}
	if err := c.store.AppendErrorLog(ctx, scrape.ErrorLog{
		WorkerID:   c.cfg.WorkerID,
		Source:     item.Source,
		Message:    cause.Error(),
		RetryCount: item.Attempt,
		MaxRetries: c.cfg.MaxRetries,
		CreatedAt:  now,
	}); err != nil {
		logger.Warn("error log append failed", zap.Error(err))
	}
	if c.metrics != nil {
		outcome := "retried"
		if exhausted {
			outcome = "failed"
		}
		c.metrics.ItemsTotal.WithLabelValues(item.Source, outcome).Inc()
	}

	c.errorsCount++
	if exhausted {
		c.status = scrape.WorkerDegraded
	}
	c.heartbeat(ctx, logger, fmt.Sprintf("failed %s: %v", item.String(), cause))
}

func (c *Consumer) heartbeat(ctx context.Context, logger *zap.Logger, note string) {
	if err := c.store.UpsertWorkerHealth(ctx, scrape.WorkerHealth{
		WorkerID:        c.cfg.WorkerID,
		WorkerType:      "consumer",
		Status:          c.status,
		LastHeartbeat:   c.clock.Now(),
		ItemsProcessed:  c.itemsProcessed,
		ErrorsCount:     c.errorsCount,
		AvgProcessingMs: c.avgMs,
		Context:         note,
	}); err != nil {
		logger.Warn("heartbeat failed", zap.Error(err))
	}
}
