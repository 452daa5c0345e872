package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/museumfetch/internal/config"
	"github.com/IshaanNene/museumfetch/internal/types"
)

func TestApplyCLIOverrides(t *testing.T) {
	cmd := collectCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--workers", "8", "--dedupe-cities"}))

	cfg := config.DefaultConfig()
	applyCLIOverrides(cmd, cfg)

	assert.Equal(t, 8, cfg.Collector.Workers)
	assert.True(t, cfg.Collector.DedupeCities)
	assert.False(t, cfg.Debug.KeepHTML)
}

func TestApplyCLIOverridesKeepsConfigWhenUnset(t *testing.T) {
	workers, dedupeCities, keepHTML = 0, false, false
	cmd := runCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := config.DefaultConfig()
	cfg.Collector.DedupeCities = true
	applyCLIOverrides(cmd, cfg)

	assert.Equal(t, 5, cfg.Collector.Workers)
	assert.True(t, cfg.Collector.DedupeCities)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "(unset)", mask(""))
	assert.Equal(t, "****", mask("s3cret"))
}

func TestOptional(t *testing.T) {
	assert.Equal(t, types.NotAvailable, optional(nil))
	assert.Equal(t, "8700000", optional(types.Int64(8_700_000)))
}

func TestSetupLoggerLevel(t *testing.T) {
	verbose = false
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	verbose = true
	defer func() { verbose = false }()
	logger = setupLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
