package producer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/scrape"
	"github.com/leadharvest/leadscraper/internal/sources"
	statemem "github.com/leadharvest/leadscraper/internal/state/memory"
	storagemem "github.com/leadharvest/leadscraper/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDs struct {
	n int
}

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}

type recordingQueue struct {
	items   []scrape.WorkItem
	failing bool
}

func (q *recordingQueue) Submit(_ context.Context, item scrape.WorkItem) error {
	if q.failing {
		return fmt.Errorf("queue unavailable")
	}
	q.items = append(q.items, item)
	return nil
}

func newTestProducer(t *testing.T) (*Producer, *statemem.Store, *recordingQueue, *storagemem.BlobStore, *fakeClock) {
	t.Helper()
	store := statemem.NewStore()
	queue := &recordingQueue{}
	blobs := storagemem.NewBlobStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	cfg := Config{FailedRetryHours: 24, CompletedRetryDays: 7, TestGeoCodes: 5}
	p := New(store, queue, sources.Default(), blobs, clock, &seqIDs{}, cfg, zap.NewNop())
	return p, store, queue, blobs, clock
}

func TestSeedTestModeSingleSource(t *testing.T) {
	p, store, queue, _, _ := newTestProducer(t)

	// TX has one board and the directory; ten counties capped at five
	// gives five items per source.
	result, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"TX"}})
	require.NoError(t, err)
	require.Equal(t, 10, result.Queued)
	require.Zero(t, result.Skipped)
	require.Zero(t, result.Errors)
	require.Len(t, queue.items, 10)
	require.Equal(t, 10, store.QueueStateCount())

	counters, err := store.GetQueueCounters(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 10, counters.TotalItems)
}

func TestSeedSecondRunSkipsEverything(t *testing.T) {
	p, _, queue, _, _ := newTestProducer(t)

	first, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"TX"}})
	require.NoError(t, err)
	require.Equal(t, 10, first.Queued)

	second, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"TX"}})
	require.NoError(t, err)
	require.Zero(t, second.Queued)
	require.Equal(t, 10, second.Skipped)
	require.Zero(t, second.Errors)
	require.Len(t, queue.items, 10)
}

func TestSeedForceRequeues(t *testing.T) {
	p, _, queue, _, _ := newTestProducer(t)

	_, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"TX"}})
	require.NoError(t, err)

	forced, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"TX"}, Force: true})
	require.NoError(t, err)
	require.Equal(t, 10, forced.Queued)
	require.Len(t, queue.items, 20)
}

func TestSeedSkipRules(t *testing.T) {
	p, store, _, _, clock := newTestProducer(t)
	ctx := context.Background()

	key := func(geo string) scrape.ItemKey {
		return scrape.ItemKey{GeoCode: geo, RegionCode: "TX", Source: "tx-tdlr", Category: "contractor"}
	}

	// Failed an hour ago: inside the 24h window, skipped.
	require.NoError(t, store.UpsertQueueState(ctx, scrape.QueueState{
		Key: key("Harris"), Status: scrape.StatusFailed,
		LastAttemptedAt: clock.now.Add(-time.Hour),
	}))
	// Failed two days ago: eligible again.
	require.NoError(t, store.UpsertQueueState(ctx, scrape.QueueState{
		Key: key("Dallas"), Status: scrape.StatusFailed,
		LastAttemptedAt: clock.now.Add(-48 * time.Hour),
	}))
	// Completed yesterday: inside the 7d window, skipped.
	require.NoError(t, store.UpsertQueueState(ctx, scrape.QueueState{
		Key: key("Tarrant"), Status: scrape.StatusCompleted,
		LastAttemptedAt: clock.now.Add(-24 * time.Hour),
	}))
	// Completed ten days ago: eligible again. The row was touched since,
	// but the window runs from the attempt, not the last write.
	require.NoError(t, store.UpsertQueueState(ctx, scrape.QueueState{
		Key: key("Bexar"), Status: scrape.StatusCompleted,
		LastAttemptedAt: clock.now.Add(-10 * 24 * time.Hour),
		UpdatedAt:       clock.now.Add(-time.Hour),
	}))
	// Still processing: always skipped.
	require.NoError(t, store.UpsertQueueState(ctx, scrape.QueueState{
		Key: key("Travis"), Status: scrape.StatusProcessing,
		LastAttemptedAt: clock.now.Add(-30 * 24 * time.Hour),
	}))

	result, err := p.Seed(ctx, SeedRequest{Mode: ModeTest, Regions: []string{"TX"}})
	require.NoError(t, err)
	// Five bizdir items plus Dallas and Bexar from the board.
	require.Equal(t, 7, result.Queued)
	require.Equal(t, 3, result.Skipped)
	require.Zero(t, result.Errors)
}

func TestSeedQueueFailureCountsErrors(t *testing.T) {
	p, store, queue, _, _ := newTestProducer(t)
	queue.failing = true

	result, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"TX"}})
	require.NoError(t, err)
	require.Zero(t, result.Queued)
	require.Equal(t, 10, result.Errors)
	require.Zero(t, store.QueueStateCount())
}

func TestSeedUnknownRegionCountsError(t *testing.T) {
	p, _, _, _, _ := newTestProducer(t)

	result, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"TX", "NY"}})
	require.NoError(t, err)
	require.Equal(t, 10, result.Queued)
	require.Equal(t, 1, result.Errors)
}

func TestSeedUnknownModeFails(t *testing.T) {
	p, _, _, _, _ := newTestProducer(t)

	_, err := p.Seed(context.Background(), SeedRequest{Mode: "dry-run"})
	require.Error(t, err)
}

func TestSeedWritesSummary(t *testing.T) {
	p, _, _, blobs, _ := newTestProducer(t)

	result, err := p.Seed(context.Background(), SeedRequest{Mode: ModeTest, Regions: []string{"CA"}})
	require.NoError(t, err)

	paths := blobs.Paths()
	require.Len(t, paths, 1)
	require.Contains(t, paths[0], result.RunID)
}
