// Package memory provides an in-memory StateStore for development/testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Store implements scrape.StateStore with mutex-guarded maps.
type Store struct {
	mu          sync.RWMutex
	queueStates map[scrape.ItemKey]scrape.QueueState
	counters    scrape.QueueCounters
	rateLimits  map[string]scrape.RateLimitState
	workers     map[string]scrape.WorkerHealth
	processing  []scrape.ProcessingLog
	errorLogs   []scrape.ErrorLog
	licensees   map[licenseeKey]scrape.Licensee
}

type licenseeKey struct {
	license string
	region  string
	source  string
	srcID   string
}

func keyFor(rec scrape.Licensee) licenseeKey {
	if rec.LicenseNumber != "" {
		return licenseeKey{license: rec.LicenseNumber, region: rec.RegionCode}
	}
	return licenseeKey{source: rec.Source, srcID: rec.SourceID}
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{
		queueStates: make(map[scrape.ItemKey]scrape.QueueState),
		rateLimits:  make(map[string]scrape.RateLimitState),
		workers:     make(map[string]scrape.WorkerHealth),
		licensees:   make(map[licenseeKey]scrape.Licensee),
	}
}

// GetQueueState fetches the queue-state row for a key.
func (s *Store) GetQueueState(_ context.Context, key scrape.ItemKey) (scrape.QueueState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.queueStates[key]
	if !ok {
		return scrape.QueueState{}, scrape.ErrNotFound
	}
	return state, nil
}

// UpsertQueueState inserts or replaces the row for the state's key.
func (s *Store) UpsertQueueState(_ context.Context, state scrape.QueueState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueStates[state.Key] = state
	return nil
}

// GetQueueCounters returns the aggregate counter row.
func (s *Store) GetQueueCounters(_ context.Context) (scrape.QueueCounters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters, nil
}

// IncrementQueueCounters adds the deltas to the counter row.
func (s *Store) IncrementQueueCounters(_ context.Context, total, processed, failed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.TotalItems += total
	s.counters.ProcessedItems += processed
	s.counters.FailedItems += failed
	return nil
}

// ReapStaleProcessing flips processing rows older than cutoff back to failed.
func (s *Store) ReapStaleProcessing(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var flipped int64
	for key, state := range s.queueStates {
		if state.Status == scrape.StatusProcessing && state.LastAttemptedAt.Before(cutoff) {
			state.Status = scrape.StatusFailed
			state.UpdatedAt = time.Now().UTC()
			s.queueStates[key] = state
			flipped++
		}
	}
	return flipped, nil
}

// GetRateLimit fetches the per-source limiter row.
func (s *Store) GetRateLimit(_ context.Context, source string) (scrape.RateLimitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.rateLimits[source]
	if !ok {
		return scrape.RateLimitState{}, scrape.ErrNotFound
	}
	return state, nil
}

// UpdateRateLimit replaces the per-source limiter row.
func (s *Store) UpdateRateLimit(_ context.Context, state scrape.RateLimitState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimits[state.Source] = state
	return nil
}

// UpsertWorkerHealth inserts or replaces a worker-health row.
func (s *Store) UpsertWorkerHealth(_ context.Context, health scrape.WorkerHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[health.WorkerID] = health
	return nil
}

// ListWorkerHealth returns all worker-health rows.
func (s *Store) ListWorkerHealth(_ context.Context) ([]scrape.WorkerHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.WorkerHealth, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out, nil
}

// AppendProcessingLog appends an audit row.
func (s *Store) AppendProcessingLog(_ context.Context, entry scrape.ProcessingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = append(s.processing, entry)
	return nil
}

// AppendErrorLog appends an error row.
func (s *Store) AppendErrorLog(_ context.Context, entry scrape.ErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorLogs = append(s.errorLogs, entry)
	return nil
}

// HourlyErrorStats counts error and processing rows since the given
// time. Coordinator alerts share the error_log table but carry a
// severity; they are not processing failures and stay out of the count.
func (s *Store) HourlyErrorStats(_ context.Context, since time.Time) (scrape.HourlyErrorStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats scrape.HourlyErrorStats
	for _, e := range s.errorLogs {
		if e.Severity == "" && !e.CreatedAt.Before(since) {
			stats.Errors++
		}
	}
	for _, p := range s.processing {
		if !p.CreatedAt.Before(since) {
			stats.Processed++
		}
	}
	return stats, nil
}

// LastProcessedAt returns the timestamp of the most recent processing row.
func (s *Store) LastProcessedAt(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	for _, p := range s.processing {
		if p.CreatedAt.After(last) {
			last = p.CreatedAt
		}
	}
	if last.IsZero() {
		return time.Time{}, scrape.ErrNotFound
	}
	return last, nil
}

// UpsertLicensees inserts records, skipping natural-key conflicts, and
// returns the number of new rows.
func (s *Store) UpsertLicensees(_ context.Context, records []scrape.Licensee) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, rec := range records {
		k := keyFor(rec)
		if _, exists := s.licensees[k]; exists {
			continue
		}
		s.licensees[k] = rec
		inserted++
	}
	return inserted, nil
}

// LicenseeCount reports stored rows (test helper).
func (s *Store) LicenseeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.licensees)
}

// QueueStateCount reports queue-state rows (test helper).
func (s *Store) QueueStateCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queueStates)
}

// ErrorLogs returns a copy of the error rows (test helper).
func (s *Store) ErrorLogs() []scrape.ErrorLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.ErrorLog, len(s.errorLogs))
	copy(out, s.errorLogs)
	return out
}

// ProcessingLogs returns a copy of the audit rows (test helper).
func (s *Store) ProcessingLogs() []scrape.ProcessingLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.ProcessingLog, len(s.processing))
	copy(out, s.processing)
	return out
}
