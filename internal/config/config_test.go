package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "https://api.regulations.gov/v4", cfg.Regulations.BaseURL)
	assert.Equal(t, 50, cfg.Regulations.RatePerMinute)
	assert.Equal(t, 10, cfg.Analyze.BatchSize)
	assert.Equal(t, 3, cfg.Analyze.MaxRetries)
	assert.Equal(t, 50, cfg.Analyze.CheckpointEvery)
	assert.Equal(t, 0, cfg.Analyze.TruncateChars)
	assert.Equal(t, 0, cfg.Cluster.K)
	assert.Equal(t, 12, cfg.Cluster.MaxK)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCKET_ANALYZE_BATCH_SIZE", "25")
	t.Setenv("DOCKET_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Analyze.BatchSize)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestAnalyzeConfig_Durations(t *testing.T) {
	c := AnalyzeConfig{TimeoutSecs: 60, BackoffSecs: 2}
	assert.Equal(t, 60*time.Second, c.Timeout())
	assert.Equal(t, 2*time.Second, c.Backoff())
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
