package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

func testItem(geo string) scrape.WorkItem {
	return scrape.WorkItem{GeoCode: geo, RegionCode: "TX", Source: "tx-tdlr", Category: "contractor"}
}

func TestSubmitReceiveOrder(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, testItem("Harris")))
	require.NoError(t, q.Submit(ctx, testItem("Dallas")))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "Harris", d.Item.GeoCode)
	d.Ack()

	d, err = q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "Dallas", d.Item.GeoCode)
	d.Ack()
}

func TestNackRedeliversWithBumpedAttempt(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, testItem("Harris")))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, d.Item.Attempt)
	d.Nack()

	d, err = q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "Harris", d.Item.GeoCode)
	require.Equal(t, 1, d.Item.Attempt)
}

func TestReceiveHonorsContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, testItem("Harris")))

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Submit(full, testItem("Dallas"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNackAfterCloseDropsItem(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, testItem("Harris")))

	d, err := q.Receive(ctx)
	require.NoError(t, err)

	q.Close()
	d.Nack() // must not panic on the closed channel
}
