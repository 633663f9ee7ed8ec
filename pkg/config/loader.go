package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pooltuner")
	}

	v.SetEnvPrefix("POOLTUNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "pooltuner")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "app")
	v.SetDefault("database.user", "app")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.ping_timeout", "10s")

	// Pool defaults
	v.SetDefault("pool.base_pool_size", 10)
	v.SetDefault("pool.max_pool_size", 30)
	v.SetDefault("pool.base_overflow", 5)
	v.SetDefault("pool.max_overflow", 15)
	v.SetDefault("pool.acquire_timeout", "2s")
	v.SetDefault("pool.warm_cache_size", 5)
	v.SetDefault("pool.scale_up_threshold", 0.8)
	v.SetDefault("pool.scale_down_threshold", 0.3)
	v.SetDefault("pool.scale_cooldown", "60s")
	v.SetDefault("pool.scale_tick", "15s")
	v.SetDefault("pool.max_retry_attempts", 3)
	v.SetDefault("pool.retry_backoff_base", "500ms")
	v.SetDefault("pool.scaling_history_size", 256)

	// Lifecycle defaults
	v.SetDefault("lifecycle.idle_timeout", "5m")
	v.SetDefault("lifecycle.stale_threshold", "10m")
	v.SetDefault("lifecycle.max_connection_age", "30m")
	v.SetDefault("lifecycle.error_ratio_limit", 0.25)
	v.SetDefault("lifecycle.reuse_strategy", "best_performance")
	v.SetDefault("lifecycle.aging_sweep_tick", "30s")
	v.SetDefault("lifecycle.stale_sweep_tick", "60s")
	v.SetDefault("lifecycle.analytics_tick", "5m")

	// Health defaults
	v.SetDefault("health.check_tick", "15s")
	v.SetDefault("health.window", "5m")
	v.SetDefault("health.error_rate_warning", 0.05)
	v.SetDefault("health.error_rate_degraded", 0.10)
	v.SetDefault("health.error_rate_critical", 0.20)
	v.SetDefault("health.handshake_warning", "2s")
	v.SetDefault("health.handshake_critical", "5s")
	v.SetDefault("health.remediation_cooldown", "60s")
	v.SetDefault("health.predictive_tick", "5m")
	v.SetDefault("health.predictive_window", "30m")
	v.SetDefault("health.predictive_confidence", 0.8)
	v.SetDefault("health.certificate_check_tick", "1h")
	v.SetDefault("health.cert_warning_days", 30)
	v.SetDefault("health.cert_critical_days", 7)
	v.SetDefault("health.attempt_history_limit", 5000)
	v.SetDefault("health.recent_failure_refresh", 3)

	// Metrics defaults
	v.SetDefault("metrics.raw_buffer_size", 10000)
	v.SetDefault("metrics.collection_interval", "10s")
	v.SetDefault("metrics.aggregation_window", "5m")
	v.SetDefault("metrics.retention_hours", 24)
	v.SetDefault("metrics.trend_min_samples", 4)
	v.SetDefault("metrics.anomaly_warning_z", 2.0)
	v.SetDefault("metrics.anomaly_critical_z", 3.0)

	// Alerting defaults
	v.SetDefault("alerting.evaluation_tick", "30s")
	v.SetDefault("alerting.resolve_tick", "60s")
	v.SetDefault("alerting.default_cooldown", "5m")
	v.SetDefault("alerting.history_size", 500)
	v.SetDefault("alerting.acquire_warning", "500ms")
	v.SetDefault("alerting.acquire_critical", "2s")

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.operator_user", "operator")
	v.SetDefault("api.max_request_size", 1<<20)

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 100)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 64)

	// Exporter defaults
	v.SetDefault("exporter.enabled", true)
	v.SetDefault("exporter.port", 9090)

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
	v.SetDefault("events.recent_limit", 200)
}
