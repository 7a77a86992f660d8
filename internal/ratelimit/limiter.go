// Package ratelimit paces outbound requests per source using shared state
// in the store, so the budget holds across every worker on every host.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Limiter enforces a per-source request budget with a read-sleep-write
// cycle against the store. The cycle is not atomic: two workers can read
// the same last-request timestamp and both proceed. The occasional burst
// is accepted; the alternative is a lock held across a network sleep.
type Limiter struct {
	store  scrape.StateStore
	clock  scrape.Clock
	logger *zap.Logger
}

// New builds a Limiter.
func New(store scrape.StateStore, clock scrape.Clock, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, clock: clock, logger: logger}
}

// Wait blocks until the source's budget allows the next request, then
// records the request in the store. The returned duration is how long the
// caller was held.
func (l *Limiter) Wait(ctx context.Context, source string, requestsPerSecond float64) (time.Duration, error) {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	state, err := l.store.GetRateLimit(ctx, source)
	if errors.Is(err, scrape.ErrNotFound) {
		state = scrape.RateLimitState{
			Source:            source,
			RequestsPerSecond: requestsPerSecond,
		}
	} else if err != nil {
		return 0, fmt.Errorf("read rate limit for %s: %w", source, err)
	}
	if state.RequestsPerSecond <= 0 {
		state.RequestsPerSecond = requestsPerSecond
	}

	interval := time.Duration(float64(time.Second) / state.RequestsPerSecond)
	elapsed := l.clock.Now().Sub(state.LastRequestAt)
	delay := interval - elapsed
	if delay > 0 {
		l.logger.Debug("rate limit wait",
			zap.String("source", source),
			zap.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("rate limit wait canceled: %w", ctx.Err())
		case <-timer.C:
		}
	} else {
		delay = 0
	}

	state.LastRequestAt = l.clock.Now()
	state.RequestCount++
	if err := l.store.UpdateRateLimit(ctx, state); err != nil {
		return delay, fmt.Errorf("record rate limit for %s: %w", source, err)
	}
	return delay, nil
}
