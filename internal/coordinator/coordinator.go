// Package coordinator runs the periodic health loop: it scores the
// pipeline, raises alerts, reseeds a draining queue, and reconciles rows
// left behind by crashed workers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/producer"
	"github.com/leadharvest/leadscraper/internal/scrape"
	"github.com/leadharvest/leadscraper/internal/telemetry"
)

// Seeder triggers a seed run when the queue drains.
type Seeder interface {
	Seed(ctx context.Context, req producer.SeedRequest) (producer.SeedResult, error)
}

// Config holds the health loop's thresholds.
type Config struct {
	WorkerID            string
	Interval            time.Duration
	SeedThreshold       int64
	MaxQueueDepth       int64
	ErrorRateThreshold  float64
	StaleWorkerMinutes  int
	StaleProcessMinutes int
	ReapAfterMinutes    int
}

// Coordinator owns the health loop.
type Coordinator struct {
	store   scrape.StateStore
	seeder  Seeder
	clock   scrape.Clock
	metrics *telemetry.Metrics
	cfg     Config
	logger  *zap.Logger

	mu           sync.RWMutex
	lastSnapshot scrape.HealthSnapshot
	haveSnapshot bool
}

// New builds a Coordinator.
func New(store scrape.StateStore, seeder Seeder, clock scrape.Clock, metrics *telemetry.Metrics, cfg Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		seeder:  seeder,
		clock:   clock,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With(zap.String("worker_id", cfg.WorkerID)),
	}
}

// Run ticks until the context ends. A failed tick logs and waits for the
// next one; the loop itself never dies.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := c.Tick(ctx); err != nil {
			c.logger.Error("health check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Snapshot returns the result of the most recent successful tick.
func (c *Coordinator) Snapshot() (scrape.HealthSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSnapshot, c.haveSnapshot
}

// Tick runs one health check. A store failure on the opening reads marks
// the coordinator itself critical and returns; everything after that is
// best effort.
func (c *Coordinator) Tick(ctx context.Context) (scrape.HealthSnapshot, error) {
	now := c.clock.Now()

	counters, err := c.store.GetQueueCounters(ctx)
	if err != nil {
		c.markSelf(ctx, scrape.WorkerCritical, fmt.Sprintf("counters unavailable: %v", err))
		return scrape.HealthSnapshot{}, fmt.Errorf("read counters: %w", err)
	}
	workers, err := c.store.ListWorkerHealth(ctx)
	if err != nil {
		c.markSelf(ctx, scrape.WorkerCritical, fmt.Sprintf("worker health unavailable: %v", err))
		return scrape.HealthSnapshot{}, fmt.Errorf("list workers: %w", err)
	}
	stats, err := c.store.HourlyErrorStats(ctx, now.Add(-time.Hour))
	if err != nil {
		c.markSelf(ctx, scrape.WorkerCritical, fmt.Sprintf("error stats unavailable: %v", err))
		return scrape.HealthSnapshot{}, fmt.Errorf("error stats: %w", err)
	}

	depth := counters.Depth()
	summary := c.summarizeWorkers(workers, now)
	errorRate := stats.Rate()
	alerts := c.evaluateAlerts(ctx, depth, errorRate, summary, now)

	score := healthScore(errorRate, summary, depth, c.cfg.MaxQueueDepth)
	snapshot := scrape.HealthSnapshot{
		Score:      score,
		Label:      scoreLabel(score),
		QueueDepth: depth,
		ErrorRate:  errorRate,
		Workers:    summary,
		Alerts:     alerts,
		CheckedAt:  now,
	}

	if c.metrics != nil {
		c.metrics.QueueDepth.Set(float64(depth))
		c.metrics.HealthScore.Set(score)
	}
	for _, alert := range alerts {
		if err := c.store.AppendErrorLog(ctx, scrape.ErrorLog{
			WorkerID:  c.cfg.WorkerID,
			Message:   alert.Message,
			Severity:  alert.Severity,
			CreatedAt: now,
		}); err != nil {
			c.logger.Warn("record alert failed", zap.Error(err))
		}
	}

	c.reapStale(ctx, now)
	c.reseedIfDraining(ctx, depth)
	c.markSelf(ctx, snapshot.Label, fmt.Sprintf("score=%.2f depth=%d error_rate=%.3f", score, depth, errorRate))

	c.logger.Info("health check",
		zap.Float64("score", score),
		zap.String("label", string(snapshot.Label)),
		zap.Int64("queue_depth", depth),
		zap.Float64("error_rate", errorRate),
		zap.Int("alerts", len(alerts)),
	)
	c.mu.Lock()
	c.lastSnapshot = snapshot
	c.haveSnapshot = true
	c.mu.Unlock()
	return snapshot, nil
}

// summarizeWorkers aggregates the consumer fleet; the coordinator's own
// row is not part of the fleet it judges.
func (c *Coordinator) summarizeWorkers(workers []scrape.WorkerHealth, now time.Time) scrape.WorkerSummary {
	staleCutoff := now.Add(-time.Duration(c.cfg.StaleWorkerMinutes) * time.Minute)
	var s scrape.WorkerSummary
	var msSum float64
	for _, w := range workers {
		if w.WorkerType == "coordinator" {
			continue
		}
		s.Total++
		msSum += w.AvgProcessingMs
		if w.LastHeartbeat.Before(staleCutoff) {
			s.Stale++
			continue
		}
		switch w.Status {
		case scrape.WorkerHealthy:
			s.Healthy++
		case scrape.WorkerDegraded:
			s.Degraded++
		}
	}
	if s.Total > 0 {
		s.AvgMs = msSum / float64(s.Total)
	}
	return s
}

// evaluateAlerts applies the alert rules for one tick.
func (c *Coordinator) evaluateAlerts(ctx context.Context, depth int64, errorRate float64, workers scrape.WorkerSummary, now time.Time) []scrape.Alert {
	var alerts []scrape.Alert
	if errorRate > c.cfg.ErrorRateThreshold {
		alerts = append(alerts, scrape.Alert{
			Severity: scrape.SeverityCritical,
			Message:  fmt.Sprintf("hourly error rate %.3f exceeds %.3f", errorRate, c.cfg.ErrorRateThreshold),
		})
	}
	if workers.Stale > 0 {
		alerts = append(alerts, scrape.Alert{
			Severity: scrape.SeverityHigh,
			Message:  fmt.Sprintf("%d worker(s) missed heartbeats for over %dm", workers.Stale, c.cfg.StaleWorkerMinutes),
		})
	}
	if workers.Degraded > workers.Healthy {
		alerts = append(alerts, scrape.Alert{
			Severity: scrape.SeverityHigh,
			Message:  fmt.Sprintf("degraded workers (%d) outnumber healthy (%d)", workers.Degraded, workers.Healthy),
		})
	}
	if depth > c.cfg.MaxQueueDepth {
		alerts = append(alerts, scrape.Alert{
			Severity: scrape.SeverityMedium,
			Message:  fmt.Sprintf("queue depth %d exceeds %d", depth, c.cfg.MaxQueueDepth),
		})
	}
	if alert, ok := c.stalledAlert(ctx, depth, now); ok {
		alerts = append(alerts, alert)
	}
	return alerts
}

// stalledAlert fires when nothing has completed for longer than the
// stall window. It is evaluated every tick regardless of depth; the
// counters are eventually consistent, so a zero depth cannot vouch for
// an idle pipeline.
func (c *Coordinator) stalledAlert(ctx context.Context, depth int64, now time.Time) (scrape.Alert, bool) {
	window := time.Duration(c.cfg.StaleProcessMinutes) * time.Minute
	last, err := c.store.LastProcessedAt(ctx)
	if errors.Is(err, scrape.ErrNotFound) {
		// No success has ever landed; only alarming once work exists.
		if depth == 0 {
			return scrape.Alert{}, false
		}
		return scrape.Alert{
			Severity: scrape.SeverityCritical,
			Message:  fmt.Sprintf("%d items queued and no completion recorded", depth),
		}, true
	}
	if err != nil {
		c.logger.Warn("last processed lookup failed", zap.Error(err))
		return scrape.Alert{}, false
	}
	if now.Sub(last) > window {
		return scrape.Alert{
			Severity: scrape.SeverityCritical,
			Message:  fmt.Sprintf("no completions since %s (queue depth %d)", last.Format(time.RFC3339), depth),
		}, true
	}
	return scrape.Alert{}, false
}

// reapStale reconciles processing rows whose worker died between writes,
// and counts them as failures so the depth estimate stays honest.
func (c *Coordinator) reapStale(ctx context.Context, now time.Time) {
	cutoff := now.Add(-time.Duration(c.cfg.ReapAfterMinutes) * time.Minute)
	reaped, err := c.store.ReapStaleProcessing(ctx, cutoff)
	if err != nil {
		c.logger.Warn("stale processing sweep failed", zap.Error(err))
		return
	}
	if reaped == 0 {
		return
	}
	c.logger.Warn("reaped stale processing rows", zap.Int64("count", reaped))
	if err := c.store.IncrementQueueCounters(ctx, 0, 0, reaped); err != nil {
		c.logger.Warn("counter reconcile failed", zap.Error(err))
	}
}

// reseedIfDraining triggers a production seed run when the queue falls
// under the threshold. The producer's own skip rules keep the run from
// re-queueing work that is still fresh.
func (c *Coordinator) reseedIfDraining(ctx context.Context, depth int64) {
	if c.seeder == nil || depth >= c.cfg.SeedThreshold {
		return
	}
	result, err := c.seeder.Seed(ctx, producer.SeedRequest{Mode: producer.ModeProduction})
	if err != nil {
		c.logger.Error("reseed failed", zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.SeededTotal.WithLabelValues("queued").Add(float64(result.Queued))
		c.metrics.SeededTotal.WithLabelValues("skipped").Add(float64(result.Skipped))
		c.metrics.SeededTotal.WithLabelValues("errors").Add(float64(result.Errors))
	}
	c.logger.Info("reseeded draining queue",
		zap.Int64("depth", depth),
		zap.Int("queued", result.Queued),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
	)
}

func (c *Coordinator) markSelf(ctx context.Context, status scrape.WorkerStatus, note string) {
	if err := c.store.UpsertWorkerHealth(ctx, scrape.WorkerHealth{
		WorkerID:      c.cfg.WorkerID,
		WorkerType:    "coordinator",
		Status:        status,
		LastHeartbeat: c.clock.Now(),
		Context:       note,
	}); err != nil {
		c.logger.Warn("coordinator heartbeat failed", zap.Error(err))
	}
}

// healthScore computes the multiplicative pipeline score.
func healthScore(errorRate float64, workers scrape.WorkerSummary, depth, maxDepth int64) float64 {
	score := 1.0

	penalty := 1 - errorRate*5
	if penalty < 0 {
		penalty = 0
	}
	score *= penalty

	if workers.Total > 0 {
		score *= float64(workers.Healthy) / float64(workers.Total)
	}

	if maxDepth > 0 {
		ratio := float64(depth) / float64(maxDepth)
		if ratio > 0.8 {
			score *= 0.8
		} else if ratio < 0.01 {
			score *= 0.9
		}
	}

	if workers.Stale > 0 {
		score *= 0.7
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func scoreLabel(score float64) scrape.WorkerStatus {
	switch {
	case score > 0.8:
		return scrape.WorkerHealthy
	case score > 0.5:
		return scrape.WorkerDegraded
	default:
		return scrape.WorkerCritical
	}
}
