package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewBuildsBothModes(t *testing.T) {
	for _, development := range []bool{true, false} {
		logger, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}

func TestNamedTagsComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Named(zap.New(core), "consumer").Info("item scraped")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "consumer", entries[0].LoggerName)
}
