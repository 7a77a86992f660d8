package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// UpsertWorkerHealth inserts or updates a worker-health row.
func (s *Store) UpsertWorkerHealth(ctx context.Context, health scrape.WorkerHealth) error {
	query := `
		INSERT INTO worker_health
			(worker_id, worker_type, status, last_heartbeat, items_processed, errors_count, avg_processing_ms, context)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (worker_id) DO UPDATE
		SET worker_type = EXCLUDED.worker_type,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			items_processed = EXCLUDED.items_processed,
			errors_count = EXCLUDED.errors_count,
			avg_processing_ms = EXCLUDED.avg_processing_ms,
			context = EXCLUDED.context;
	`
	_, err := s.pool.Exec(ctx, query,
		health.WorkerID,
		health.WorkerType,
		health.Status,
		health.LastHeartbeat,
		health.ItemsProcessed,
		health.ErrorsCount,
		health.AvgProcessingMs,
		health.Context,
	)
	if err != nil {
		return fmt.Errorf("upsert worker health: %w", err)
	}
	return nil
}

// ListWorkerHealth returns all worker-health rows.
func (s *Store) ListWorkerHealth(ctx context.Context) ([]scrape.WorkerHealth, error) {
	query := `
		SELECT worker_id, worker_type, status, last_heartbeat, items_processed, errors_count, avg_processing_ms, context
		FROM worker_health
		ORDER BY worker_id;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list worker health: %w", err)
	}
	defer rows.Close()

	var out []scrape.WorkerHealth
	for rows.Next() {
		var w scrape.WorkerHealth
		if err := rows.Scan(
			&w.WorkerID,
			&w.WorkerType,
			&w.Status,
			&w.LastHeartbeat,
			&w.ItemsProcessed,
			&w.ErrorsCount,
			&w.AvgProcessingMs,
			&w.Context,
		); err != nil {
			return nil, fmt.Errorf("scan worker health row: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate worker health rows: %w", err)
	}
	return out, nil
}

// AppendProcessingLog appends an audit row. Rows are never updated or
// deleted here; retention is handled elsewhere.
func (s *Store) AppendProcessingLog(ctx context.Context, entry scrape.ProcessingLog) error {
	query := `
		INSERT INTO processing_log (worker_id, source, region_code, geo_code, records, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7);
	`
	_, err := s.pool.Exec(ctx, query,
		entry.WorkerID,
		entry.Source,
		entry.RegionCode,
		entry.GeoCode,
		entry.Records,
		entry.DurationMs,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

// AppendErrorLog appends an error row.
func (s *Store) AppendErrorLog(ctx context.Context, entry scrape.ErrorLog) error {
	query := `
		INSERT INTO error_log (worker_id, source, message, severity, retry_count, max_retries, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7);
	`
	_, err := s.pool.Exec(ctx, query,
		entry.WorkerID,
		entry.Source,
		entry.Message,
		entry.Severity,
		entry.RetryCount,
		entry.MaxRetries,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}

// HourlyErrorStats counts error and processing rows since the given
// time. Alert rows carry a severity and are excluded; counting them
// would feed each tick's alerts into the next tick's error rate.
func (s *Store) HourlyErrorStats(ctx context.Context, since time.Time) (scrape.HourlyErrorStats, error) {
	var stats scrape.HourlyErrorStats
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM error_log WHERE created_at >= $1 AND severity = '';`, since,
	).Scan(&stats.Errors); err != nil {
		return scrape.HourlyErrorStats{}, fmt.Errorf("count errors: %w", err)
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM processing_log WHERE created_at >= $1;`, since,
	).Scan(&stats.Processed); err != nil {
		return scrape.HourlyErrorStats{}, fmt.Errorf("count processed: %w", err)
	}
	return stats, nil
}

// LastProcessedAt returns the timestamp of the most recent processing row.
func (s *Store) LastProcessedAt(ctx context.Context) (time.Time, error) {
	var last *time.Time
	if err := s.pool.QueryRow(ctx,
		`SELECT max(created_at) FROM processing_log;`,
	).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("last processed at: %w", err)
	}
	if last == nil {
		return time.Time{}, scrape.ErrNotFound
	}
	return *last, nil
}
