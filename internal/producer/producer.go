// Package producer seeds the work queue with geography/source pairs,
// skipping pairs whose state says a fresh scrape would be wasted.
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/scrape"
	"github.com/leadharvest/leadscraper/internal/sources"
)

// Seed modes. Test mode caps each region's roster so a run finishes in
// minutes; production mode seeds everything.
const (
	ModeTest       = "test"
	ModeProduction = "production"
)

// Config holds the producer's re-queue windows.
type Config struct {
	FailedRetryHours   int
	CompletedRetryDays int
	TestGeoCodes       int
}

// SeedRequest selects what to seed.
type SeedRequest struct {
	Mode    string   `json:"mode"`
	Regions []string `json:"regions,omitempty"`
	Force   bool     `json:"force,omitempty"`
}

// SeedResult tallies one seed run. Per-item failures land in Errors and
// never abort the run.
type SeedResult struct {
	RunID   string   `json:"run_id"`
	Mode    string   `json:"mode"`
	Regions []string `json:"regions"`
	Queued  int      `json:"queued"`
	Skipped int      `json:"skipped"`
	Errors  int      `json:"errors"`
}

// Producer enumerates geography/source pairs and submits work items.
type Producer struct {
	store   scrape.StateStore
	queue   scrape.Queue
	catalog *sources.Catalog
	blobs   scrape.BlobStore
	clock   scrape.Clock
	ids     scrape.IDGenerator
	cfg     Config
	logger  *zap.Logger
}

// New builds a Producer.
func New(store scrape.StateStore, queue scrape.Queue, catalog *sources.Catalog, blobs scrape.BlobStore, clock scrape.Clock, ids scrape.IDGenerator, cfg Config, logger *zap.Logger) *Producer {
	return &Producer{
		store:   store,
		queue:   queue,
		catalog: catalog,
		blobs:   blobs,
		clock:   clock,
		ids:     ids,
		cfg:     cfg,
		logger:  logger,
	}
}

// Seed runs one seed pass and returns its tally. Unknown regions in the
// request count as errors; unknown modes fail the whole request since
// nothing was asked for.
func (p *Producer) Seed(ctx context.Context, req SeedRequest) (SeedResult, error) {
	if req.Mode != ModeTest && req.Mode != ModeProduction {
		return SeedResult{}, fmt.Errorf("unknown seed mode %q", req.Mode)
	}
	regions := req.Regions
	if len(regions) == 0 {
		regions = Regions()
	}

	result := SeedResult{
		RunID:   p.ids.NewID(),
		Mode:    req.Mode,
		Regions: regions,
	}
	logger := p.logger.With(zap.String("run_id", result.RunID), zap.String("mode", req.Mode))

	for _, region := range regions {
		geos := GeoCodes(region)
		if geos == nil {
			logger.Warn("unknown region in seed request", zap.String("region", region))
			result.Errors++
			continue
		}
		if req.Mode == ModeTest && p.cfg.TestGeoCodes > 0 && len(geos) > p.cfg.TestGeoCodes {
			geos = geos[:p.cfg.TestGeoCodes]
		}
		for _, src := range p.catalog.ForRegion(region) {
			for _, geo := range geos {
				p.seedOne(ctx, logger, scrape.WorkItem{
					GeoCode:     geo,
					RegionCode:  region,
					Source:      src.Code,
					Category:    src.Category,
					ScheduledAt: p.clock.Now(),
				}, req.Force, &result)
			}
		}
	}

	p.writeSummary(ctx, logger, result)
	logger.Info("seed run finished",
		zap.Int("queued", result.Queued),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// seedOne submits a single item, routing every failure into the tally.
func (p *Producer) seedOne(ctx context.Context, logger *zap.Logger, item scrape.WorkItem, force bool, result *SeedResult) {
	if !force {
		queued, err := p.isAlreadyQueued(ctx, item.Key())
		if err != nil {
			logger.Warn("queue-state lookup failed", zap.Stringer("item", item), zap.Error(err))
			result.Errors++
			return
		}
		if queued {
			result.Skipped++
			return
		}
	}

	if err := p.queue.Submit(ctx, item); err != nil {
		logger.Warn("submit failed", zap.Stringer("item", item), zap.Error(err))
		result.Errors++
		return
	}

	now := p.clock.Now()
	state := scrape.QueueState{
		Key:       item.Key(),
		Status:    scrape.StatusQueued,
		Priority:  item.Priority,
		QueuedAt:  now,
		UpdatedAt: now,
	}
	if err := p.store.UpsertQueueState(ctx, state); err != nil {
		// The item is already on the queue; the consumer's own upsert
		// repairs the row on delivery.
		logger.Warn("queue-state upsert failed", zap.Stringer("item", item), zap.Error(err))
		result.Errors++
		return
	}
	if err := p.store.IncrementQueueCounters(ctx, 1, 0, 0); err != nil {
		logger.Warn("counter increment failed", zap.Stringer("item", item), zap.Error(err))
		result.Errors++
		return
	}
	result.Queued++
}

// isAlreadyQueued applies the skip rules: queued and processing rows
// always skip, failed rows skip inside the retry window, completed rows
// skip inside the re-scrape window.
func (p *Producer) isAlreadyQueued(ctx context.Context, key scrape.ItemKey) (bool, error) {
	state, err := p.store.GetQueueState(ctx, key)
	if errors.Is(err, scrape.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := p.clock.Now()
	switch state.Status {
	case scrape.StatusQueued, scrape.StatusProcessing:
		return true, nil
	case scrape.StatusFailed:
		window := time.Duration(p.cfg.FailedRetryHours) * time.Hour
		return now.Sub(state.LastAttemptedAt) < window, nil
	case scrape.StatusCompleted:
		window := time.Duration(p.cfg.CompletedRetryDays) * 24 * time.Hour
		return now.Sub(state.LastAttemptedAt) < window, nil
	default:
		return false, nil
	}
}

// writeSummary archives the run tally. Failures are logged and dropped;
// the summary is an audit artifact, not pipeline state.
func (p *Producer) writeSummary(ctx context.Context, logger *zap.Logger, result SeedResult) {
	if p.blobs == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warn("marshal seed summary", zap.Error(err))
		return
	}
	path := fmt.Sprintf("seeds/%s/%s.json", p.clock.Now().Format("2006-01-02"), result.RunID)
	if _, err := p.blobs.PutObject(ctx, path, "application/json", bytes.NewReader(data)); err != nil {
		logger.Warn("archive seed summary", zap.Error(err))
	}
}
