package config

import "fmt"

// Validate checks cross-field constraints that viper defaults cannot express.
func (c *Config) Validate() error {
	if c.Pool.BasePoolSize <= 0 {
		return fmt.Errorf("pool.base_pool_size must be positive, got %d", c.Pool.BasePoolSize)
	}
	if c.Pool.MaxPoolSize < c.Pool.BasePoolSize {
		return fmt.Errorf("pool.max_pool_size (%d) must be >= pool.base_pool_size (%d)",
			c.Pool.MaxPoolSize, c.Pool.BasePoolSize)
	}
	if c.Pool.BaseOverflow < 0 || c.Pool.MaxOverflow < c.Pool.BaseOverflow {
		return fmt.Errorf("invalid overflow bounds: base=%d max=%d",
			c.Pool.BaseOverflow, c.Pool.MaxOverflow)
	}
	if c.Pool.ScaleUpThreshold <= 0 || c.Pool.ScaleUpThreshold > 1 {
		return fmt.Errorf("pool.scale_up_threshold must be in (0, 1], got %v", c.Pool.ScaleUpThreshold)
	}
	if c.Pool.ScaleDownThreshold < 0 || c.Pool.ScaleDownThreshold >= c.Pool.ScaleUpThreshold {
		return fmt.Errorf("pool.scale_down_threshold (%v) must be >= 0 and below scale_up_threshold (%v)",
			c.Pool.ScaleDownThreshold, c.Pool.ScaleUpThreshold)
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquire_timeout must be positive")
	}
	if c.Pool.MaxRetryAttempts < 1 {
		return fmt.Errorf("pool.max_retry_attempts must be at least 1, got %d", c.Pool.MaxRetryAttempts)
	}

	if c.Lifecycle.IdleTimeout <= 0 || c.Lifecycle.StaleThreshold <= 0 || c.Lifecycle.MaxConnectionAge <= 0 {
		return fmt.Errorf("lifecycle timeouts must be positive")
	}
	if c.Lifecycle.StaleThreshold < c.Lifecycle.IdleTimeout {
		return fmt.Errorf("lifecycle.stale_threshold (%v) must be >= lifecycle.idle_timeout (%v)",
			c.Lifecycle.StaleThreshold, c.Lifecycle.IdleTimeout)
	}
	switch c.Lifecycle.ReuseStrategy {
	case "fifo", "lifo", "least_used", "round_robin", "best_performance":
	default:
		return fmt.Errorf("unknown lifecycle.reuse_strategy %q", c.Lifecycle.ReuseStrategy)
	}

	if c.Health.ErrorRateWarning >= c.Health.ErrorRateDegraded ||
		c.Health.ErrorRateDegraded >= c.Health.ErrorRateCritical {
		return fmt.Errorf("health error-rate thresholds must be strictly increasing: %v, %v, %v",
			c.Health.ErrorRateWarning, c.Health.ErrorRateDegraded, c.Health.ErrorRateCritical)
	}
	if c.Health.CertCriticalDays >= c.Health.CertWarningDays {
		return fmt.Errorf("health.cert_critical_days (%d) must be below cert_warning_days (%d)",
			c.Health.CertCriticalDays, c.Health.CertWarningDays)
	}

	if c.Metrics.RetentionHours <= 0 {
		return fmt.Errorf("metrics.retention_hours must be positive, got %d", c.Metrics.RetentionHours)
	}
	if c.Metrics.RawBufferSize <= 0 {
		return fmt.Errorf("metrics.raw_buffer_size must be positive, got %d", c.Metrics.RawBufferSize)
	}

	if c.Alerting.EvaluationTick <= 0 {
		return fmt.Errorf("alerting.evaluation_tick must be positive")
	}
	if c.Alerting.AcquireWarning <= 0 || c.Alerting.AcquireCritical <= c.Alerting.AcquireWarning {
		return fmt.Errorf("alerting acquire thresholds must be positive and increasing: warning=%v critical=%v",
			c.Alerting.AcquireWarning, c.Alerting.AcquireCritical)
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid port, got %d", c.API.Port)
	}

	return nil
}
