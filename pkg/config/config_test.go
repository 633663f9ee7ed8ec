package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivesql/pooltuner/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "pooltuner", cfg.App.Name)
	assert.Equal(t, 10, cfg.Pool.BasePoolSize)
	assert.Equal(t, 30, cfg.Pool.MaxPoolSize)
	assert.Equal(t, 2*time.Second, cfg.Pool.AcquireTimeout)
	assert.Equal(t, "best_performance", cfg.Lifecycle.ReuseStrategy)
	assert.Equal(t, 0.05, cfg.Health.ErrorRateWarning)
	assert.Equal(t, 30, cfg.Health.CertWarningDays)
	assert.Equal(t, 5*time.Minute, cfg.Metrics.AggregationWindow)
	assert.Equal(t, 30*time.Second, cfg.Alerting.EvaluationTick)
	assert.Equal(t, 500*time.Millisecond, cfg.Alerting.AcquireWarning)
	assert.Equal(t, 2*time.Second, cfg.Alerting.AcquireCritical)
	assert.Equal(t, 10*time.Second, cfg.Database.PingTimeout)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("pool:\n  base_pool_size: 4\n  max_pool_size: 12\napp:\n  log_level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pool.BasePoolSize)
	assert.Equal(t, 12, cfg.Pool.MaxPoolSize)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.Pool.WarmCacheSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POOLTUNER_POOL_MAX_POOL_SIZE", "50")
	t.Setenv("POOLTUNER_DATABASE_HOST", "db.internal")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Pool.MaxPoolSize)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool: [not: valid"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"zero base size", func(c *config.Config) { c.Pool.BasePoolSize = 0 }, "base_pool_size"},
		{"max below base", func(c *config.Config) { c.Pool.MaxPoolSize = 5 }, "max_pool_size"},
		{"overflow bounds inverted", func(c *config.Config) { c.Pool.MaxOverflow = 1 }, "overflow bounds"},
		{"threshold above one", func(c *config.Config) { c.Pool.ScaleUpThreshold = 1.5 }, "scale_up_threshold"},
		{"thresholds crossed", func(c *config.Config) { c.Pool.ScaleDownThreshold = 0.9 }, "scale_down_threshold"},
		{"zero acquire timeout", func(c *config.Config) { c.Pool.AcquireTimeout = 0 }, "acquire_timeout"},
		{"zero retries", func(c *config.Config) { c.Pool.MaxRetryAttempts = 0 }, "max_retry_attempts"},
		{"zero idle timeout", func(c *config.Config) { c.Lifecycle.IdleTimeout = 0 }, "lifecycle timeouts"},
		{"stale below idle", func(c *config.Config) { c.Lifecycle.StaleThreshold = time.Second }, "stale_threshold"},
		{"unknown strategy", func(c *config.Config) { c.Lifecycle.ReuseStrategy = "random" }, "reuse_strategy"},
		{"health thresholds not increasing", func(c *config.Config) { c.Health.ErrorRateDegraded = 0.01 }, "strictly increasing"},
		{"cert days inverted", func(c *config.Config) { c.Health.CertCriticalDays = 60 }, "cert_critical_days"},
		{"zero retention", func(c *config.Config) { c.Metrics.RetentionHours = 0 }, "retention_hours"},
		{"zero raw buffer", func(c *config.Config) { c.Metrics.RawBufferSize = 0 }, "raw_buffer_size"},
		{"zero evaluation tick", func(c *config.Config) { c.Alerting.EvaluationTick = 0 }, "evaluation_tick"},
		{"acquire thresholds inverted", func(c *config.Config) { c.Alerting.AcquireCritical = c.Alerting.AcquireWarning }, "acquire thresholds"},
		{"bad api port", func(c *config.Config) { c.API.Port = 70000 }, "api.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
