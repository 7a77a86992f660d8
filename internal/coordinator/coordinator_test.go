package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/producer"
	"github.com/leadharvest/leadscraper/internal/scrape"
	statemem "github.com/leadharvest/leadscraper/internal/state/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSeeder struct {
	calls  int
	result producer.SeedResult
}

func (s *fakeSeeder) Seed(context.Context, producer.SeedRequest) (producer.SeedResult, error) {
	s.calls++
	return s.result, nil
}

func testConfig() Config {
	return Config{
		WorkerID:            "coordinator-test",
		Interval:            time.Minute,
		SeedThreshold:       50,
		MaxQueueDepth:       10000,
		ErrorRateThreshold:  0.1,
		StaleWorkerMinutes:  5,
		StaleProcessMinutes: 60,
		ReapAfterMinutes:    30,
	}
}

func newCoordinator(store *statemem.Store, seeder Seeder, clock *fakeClock) *Coordinator {
	return New(store, seeder, clock, nil, testConfig(), zap.NewNop())
}

func seedCounters(t *testing.T, store *statemem.Store, total, processed, failed int64) {
	t.Helper()
	require.NoError(t, store.IncrementQueueCounters(context.Background(), total, processed, failed))
}

func addWorker(t *testing.T, store *statemem.Store, id string, status scrape.WorkerStatus, heartbeat time.Time) {
	t.Helper()
	require.NoError(t, store.UpsertWorkerHealth(context.Background(), scrape.WorkerHealth{
		WorkerID:      id,
		WorkerType:    "consumer",
		Status:        status,
		LastHeartbeat: heartbeat,
	}))
}

func addProcessed(t *testing.T, store *statemem.Store, at time.Time) {
	t.Helper()
	require.NoError(t, store.AppendProcessingLog(context.Background(), scrape.ProcessingLog{
		WorkerID: "w1", Source: "tx-tdlr", RegionCode: "TX", GeoCode: "Travis",
		CreatedAt: at,
	}))
}

func TestTickHealthyPipeline(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seedCounters(t, store, 1000, 500, 0)
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)
	addWorker(t, store, "w2", scrape.WorkerHealthy, clock.now)
	addProcessed(t, store, clock.now.Add(-time.Minute))

	c := newCoordinator(store, nil, clock)
	snap, err := c.Tick(context.Background())
	require.NoError(t, err)

	require.Equal(t, scrape.WorkerHealthy, snap.Label)
	require.EqualValues(t, 500, snap.QueueDepth)
	require.Empty(t, snap.Alerts)
	require.InDelta(t, 1.0, snap.Score, 0.01)

	// The coordinator records its own heartbeat alongside the fleet.
	workers, err := store.ListWorkerHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, workers, 3)
}

func TestTickReseedsWhenQueueDrains(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seeder := &fakeSeeder{result: producer.SeedResult{Queued: 120}}
	seedCounters(t, store, 100, 80, 0) // depth 20 < threshold 50
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)
	addProcessed(t, store, clock.now.Add(-time.Minute))

	c := newCoordinator(store, seeder, clock)
	_, err := c.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, seeder.calls)

	// Depth above the threshold leaves the seeder alone.
	seedCounters(t, store, 100, 0, 0) // depth 120
	_, err = c.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, seeder.calls)
}

func TestTickErrorRateAlertAndScore(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seedCounters(t, store, 1000, 500, 100)
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)

	// 4 errors against 20 completions in the window: rate 0.2.
	for i := 0; i < 4; i++ {
		require.NoError(t, store.AppendErrorLog(context.Background(), scrape.ErrorLog{
			WorkerID: "w1", Message: "boom", CreatedAt: clock.now.Add(-time.Minute),
		}))
	}
	for i := 0; i < 20; i++ {
		addProcessed(t, store, clock.now.Add(-time.Minute))
	}

	c := newCoordinator(store, nil, clock)
	snap, err := c.Tick(context.Background())
	require.NoError(t, err)

	require.InDelta(t, 0.2, snap.ErrorRate, 0.001)
	// 1.0 * (1 - 0.2*5) = 0.
	require.Zero(t, snap.Score)
	require.Equal(t, scrape.WorkerCritical, snap.Label)

	var severities []string
	for _, a := range snap.Alerts {
		severities = append(severities, a.Severity)
	}
	require.Contains(t, severities, scrape.SeverityCritical)
}

func TestScoreMonotoneInErrorRate(t *testing.T) {
	workers := scrape.WorkerSummary{Total: 2, Healthy: 2}
	prev := 2.0
	for _, rate := range []float64{0, 0.05, 0.1, 0.15, 0.2} {
		score := healthScore(rate, workers, 500, 10000)
		require.LessOrEqual(t, score, prev, "rate %v", rate)
		prev = score
	}
}

func TestTickStaleWorkerAlert(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seedCounters(t, store, 1000, 500, 0)
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)
	addWorker(t, store, "w2", scrape.WorkerHealthy, clock.now.Add(-10*time.Minute))
	addProcessed(t, store, clock.now.Add(-time.Minute))

	c := newCoordinator(store, nil, clock)
	snap, err := c.Tick(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, snap.Workers.Stale)
	// 0.5 healthy ratio times the 0.7 stale penalty.
	require.InDelta(t, 0.35, snap.Score, 0.001)
	require.Equal(t, scrape.WorkerCritical, snap.Label)

	var found bool
	for _, a := range snap.Alerts {
		if a.Severity == scrape.SeverityHigh {
			found = true
		}
	}
	require.True(t, found)
}

func TestTickStalledPipelineAlert(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seedCounters(t, store, 200, 50, 0)
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)
	addProcessed(t, store, clock.now.Add(-2*time.Hour))

	c := newCoordinator(store, nil, clock)
	snap, err := c.Tick(context.Background())
	require.NoError(t, err)

	var found bool
	for _, a := range snap.Alerts {
		if a.Severity == scrape.SeverityCritical {
			found = true
		}
	}
	require.True(t, found)
}

func TestTickStalledAlertFiresAtZeroDepth(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seedCounters(t, store, 100, 100, 0) // depth 0
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)
	addProcessed(t, store, clock.now.Add(-3*time.Hour))

	c := newCoordinator(store, nil, clock)
	snap, err := c.Tick(context.Background())
	require.NoError(t, err)

	// Counters lag the queue, so a quiet hour alarms even at zero depth.
	var found bool
	for _, a := range snap.Alerts {
		if a.Severity == scrape.SeverityCritical {
			found = true
		}
	}
	require.True(t, found)
}

func TestTickReapsStaleProcessing(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seedCounters(t, store, 100, 40, 0)
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)
	addProcessed(t, store, clock.now.Add(-time.Minute))

	key := scrape.ItemKey{GeoCode: "Travis", RegionCode: "TX", Source: "tx-tdlr", Category: "contractor"}
	require.NoError(t, store.UpsertQueueState(context.Background(), scrape.QueueState{
		Key:             key,
		Status:          scrape.StatusProcessing,
		LastAttemptedAt: clock.now.Add(-2 * time.Hour),
	}))

	c := newCoordinator(store, nil, clock)
	_, err := c.Tick(context.Background())
	require.NoError(t, err)

	state, err := store.GetQueueState(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, scrape.StatusFailed, state.Status)

	counters, err := store.GetQueueCounters(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, counters.FailedItems)
}

func TestTickAlertsLandInErrorLog(t *testing.T) {
	store := statemem.NewStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	seedCounters(t, store, 20001, 0, 0) // depth over max
	addWorker(t, store, "w1", scrape.WorkerHealthy, clock.now)
	addProcessed(t, store, clock.now.Add(-time.Minute))

	c := newCoordinator(store, nil, clock)
	snap, err := c.Tick(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, snap.Alerts)

	logs := store.ErrorLogs()
	require.Len(t, logs, len(snap.Alerts))
	require.Equal(t, scrape.SeverityMedium, logs[0].Severity)
}
