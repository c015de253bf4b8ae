package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/mountgate/pkg/common/logger"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/tmp", cfg.ScratchRoot)
	assert.Equal(t, 10, cfg.MaxChecks)
	assert.Equal(t, 500*time.Millisecond, cfg.CheckInterval)
	assert.Equal(t, 4*time.Minute, cfg.ProbeTimeout)
	assert.False(t, cfg.WatchEvents)
	assert.False(t, cfg.CalculatorStrict)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 1.0, cfg.TraceProbability)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(envOf(map[string]string{
		"PORT":                  "9090",
		"MOUNT_MAX_CHECKS":      "3",
		"MOUNT_CHECK_INTERVAL":  "2s",
		"MOUNT_WATCH_EVENTS":    "true",
		"STARTUP_PROBE_TIMEOUT": "0s",
		"CALCULATOR_STRICT":     "1",
		"CORS_ALLOWED_ORIGINS":  "https://a.example, https://b.example",
		"LOG_LEVEL":             "debug",
		"SELFTEST_BUCKET":       "bkt",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.MaxChecks)
	assert.Equal(t, 2*time.Second, cfg.CheckInterval)
	assert.True(t, cfg.WatchEvents)
	assert.Zero(t, cfg.ProbeTimeout)
	assert.True(t, cfg.CalculatorStrict)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "bkt", cfg.SelfTestBucket)
}

func TestLoadConfig_ReportsEveryInvalidValue(t *testing.T) {
	_, err := loadConfig(envOf(map[string]string{
		"PORT":                 "http",
		"MOUNT_MAX_CHECKS":     "0",
		"MOUNT_CHECK_INTERVAL": "soon",
		"CALCULATOR_STRICT":    "maybe",
		"LOG_LEVEL":            "loud",
	}))
	require.Error(t, err)

	for _, key := range []string{"PORT", "MOUNT_MAX_CHECKS", "MOUNT_CHECK_INTERVAL", "CALCULATOR_STRICT", "LOG_LEVEL"} {
		assert.Contains(t, err.Error(), key)
	}
}
