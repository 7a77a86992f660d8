package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// GetQueueState fetches the queue-state row for a key.
func (s *Store) GetQueueState(ctx context.Context, key scrape.ItemKey) (scrape.QueueState, error) {
	query := `
		SELECT status, priority, queued_at, last_attempted_at, updated_at
		FROM queue_state
		WHERE geo_code = $1 AND region_code = $2 AND source = $3 AND category = $4;
	`
	state := scrape.QueueState{Key: key}
	err := s.pool.QueryRow(ctx, query, key.GeoCode, key.RegionCode, key.Source, key.Category).Scan(
		&state.Status,
		&state.Priority,
		&state.QueuedAt,
		&state.LastAttemptedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.QueueState{}, scrape.ErrNotFound
		}
		return scrape.QueueState{}, fmt.Errorf("get queue state: %w", err)
	}
	return state, nil
}

// UpsertQueueState inserts or updates the row for the state's key. The
// composite key guarantees at most one row per (geo, region, source,
// category).
func (s *Store) UpsertQueueState(ctx context.Context, state scrape.QueueState) error {
	query := `
		INSERT INTO queue_state
			(geo_code, region_code, source, category, status, priority, queued_at, last_attempted_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (geo_code, region_code, source, category) DO UPDATE
		SET status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			queued_at = EXCLUDED.queued_at,
			last_attempted_at = EXCLUDED.last_attempted_at,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query,
		state.Key.GeoCode,
		state.Key.RegionCode,
		state.Key.Source,
		state.Key.Category,
		state.Status,
		state.Priority,
		state.QueuedAt,
		state.LastAttemptedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert queue state: %w", err)
	}
	return nil
}

// GetQueueCounters returns the aggregate counter row.
func (s *Store) GetQueueCounters(ctx context.Context) (scrape.QueueCounters, error) {
	query := `SELECT total_items, processed_items, failed_items FROM queue_counters WHERE id = 1;`
	var c scrape.QueueCounters
	if err := s.pool.QueryRow(ctx, query).Scan(&c.TotalItems, &c.ProcessedItems, &c.FailedItems); err != nil {
		return scrape.QueueCounters{}, fmt.Errorf("get queue counters: %w", err)
	}
	return c, nil
}

// IncrementQueueCounters adds the deltas to the singleton counter row.
func (s *Store) IncrementQueueCounters(ctx context.Context, total, processed, failed int64) error {
	query := `
		UPDATE queue_counters
		SET total_items = total_items + $1,
			processed_items = processed_items + $2,
			failed_items = failed_items + $3,
			updated_at = now()
		WHERE id = 1;
	`
	if _, err := s.pool.Exec(ctx, query, total, processed, failed); err != nil {
		return fmt.Errorf("increment queue counters: %w", err)
	}
	return nil
}

// ReapStaleProcessing flips rows stuck in processing since before cutoff
// back to failed. This is the reconciliation path for crashes between
// related writes.
func (s *Store) ReapStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE queue_state
		SET status = $1, updated_at = now()
		WHERE status = $2 AND last_attempted_at < $3;
	`
	tag, err := s.pool.Exec(ctx, query, scrape.StatusFailed, scrape.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetRateLimit fetches the per-source limiter row.
func (s *Store) GetRateLimit(ctx context.Context, source string) (scrape.RateLimitState, error) {
	query := `
		SELECT source, requests_per_second, last_request_at, request_count
		FROM rate_limits
		WHERE source = $1;
	`
	var state scrape.RateLimitState
	err := s.pool.QueryRow(ctx, query, source).Scan(
		&state.Source,
		&state.RequestsPerSecond,
		&state.LastRequestAt,
		&state.RequestCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.RateLimitState{}, scrape.ErrNotFound
		}
		return scrape.RateLimitState{}, fmt.Errorf("get rate limit: %w", err)
	}
	return state, nil
}

// UpdateRateLimit upserts the per-source limiter row. Last write wins; the
// limiter is best-effort by design.
func (s *Store) UpdateRateLimit(ctx context.Context, state scrape.RateLimitState) error {
	query := `
		INSERT INTO rate_limits (source, requests_per_second, last_request_at, request_count)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (source) DO UPDATE
		SET requests_per_second = EXCLUDED.requests_per_second,
			last_request_at = EXCLUDED.last_request_at,
			request_count = EXCLUDED.request_count;
	`
	_, err := s.pool.Exec(ctx, query,
		state.Source,
		state.RequestsPerSecond,
		state.LastRequestAt,
		state.RequestCount,
	)
	if err != nil {
		return fmt.Errorf("update rate limit: %w", err)
	}
	return nil
}
