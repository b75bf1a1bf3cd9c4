package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/prices.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "catalog.yaml", cfg.Catalog.Path)
	assert.Equal(t, 30, cfg.Source.TimeoutSecs)
	assert.Equal(t, 4, cfg.Source.MaxConcurrent)
	assert.Equal(t, 5, cfg.Source.MaxPagesPerCat)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.True(t, cfg.Reasoner.Enabled)
	assert.InDelta(t, 15.0, cfg.Alerts.PriceMoveThresholdPct, 0.001)
	assert.Equal(t, 7, cfg.Trend.WindowDays)
	assert.Equal(t, "08:00", cfg.Schedule.Time)
	assert.Equal(t, "America/Asuncion", cfg.Schedule.Timezone)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.MinIntervalMins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/prices
schedule:
  time: "06:30"
  run_on_start: true
alerts:
  price_move_threshold_pct: 20
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/prices", cfg.Store.DatabaseURL)
	assert.Equal(t, "06:30", cfg.Schedule.Time)
	assert.True(t, cfg.Schedule.RunOnStart)
	assert.InDelta(t, 20.0, cfg.Alerts.PriceMoveThresholdPct, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// Defaults still apply for keys the file omits.
	assert.Equal(t, 30, cfg.Source.TimeoutSecs)
	assert.Equal(t, 7, cfg.Trend.WindowDays)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	require.Error(t, err)
}
