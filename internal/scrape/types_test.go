package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHourlyErrorStatsRate(t *testing.T) {
	require.InDelta(t, 1.0, HourlyErrorStats{Errors: 4, Processed: 4}.Rate(), 0.001)
	require.InDelta(t, 0.25, HourlyErrorStats{Errors: 1, Processed: 4}.Rate(), 0.001)
	require.Zero(t, HourlyErrorStats{}.Rate())
}

func TestHourlyErrorStatsRateGuardsZeroProcessed(t *testing.T) {
	// Errors with no completions in the window: no rate, not a spike.
	require.Zero(t, HourlyErrorStats{Errors: 7}.Rate())
}
