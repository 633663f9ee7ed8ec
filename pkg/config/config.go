package config

import (
	"fmt"
	"time"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Health    HealthConfig    `mapstructure:"health"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	API       APIConfig       `mapstructure:"api"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Exporter  ExporterConfig  `mapstructure:"exporter"`
	Events    EventsConfig    `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Name        string        `mapstructure:"name"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

// Addr is the TLS endpoint checked by the certificate loop.
func (d DatabaseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

type PoolConfig struct {
	BasePoolSize       int           `mapstructure:"base_pool_size"`
	MaxPoolSize        int           `mapstructure:"max_pool_size"`
	BaseOverflow       int           `mapstructure:"base_overflow"`
	MaxOverflow        int           `mapstructure:"max_overflow"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
	WarmCacheSize      int           `mapstructure:"warm_cache_size"`
	ScaleUpThreshold   float64       `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold float64       `mapstructure:"scale_down_threshold"`
	ScaleCooldown      time.Duration `mapstructure:"scale_cooldown"`
	ScaleTick          time.Duration `mapstructure:"scale_tick"`
	MaxRetryAttempts   int           `mapstructure:"max_retry_attempts"`
	RetryBackoffBase   time.Duration `mapstructure:"retry_backoff_base"`
	ScalingHistorySize int           `mapstructure:"scaling_history_size"`
}

type LifecycleConfig struct {
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	StaleThreshold   time.Duration `mapstructure:"stale_threshold"`
	MaxConnectionAge time.Duration `mapstructure:"max_connection_age"`
	ErrorRatioLimit  float64       `mapstructure:"error_ratio_limit"`
	ReuseStrategy    string        `mapstructure:"reuse_strategy"`
	AgingSweepTick   time.Duration `mapstructure:"aging_sweep_tick"`
	StaleSweepTick   time.Duration `mapstructure:"stale_sweep_tick"`
	AnalyticsTick    time.Duration `mapstructure:"analytics_tick"`
}

type HealthConfig struct {
	CheckTick             time.Duration `mapstructure:"check_tick"`
	Window                time.Duration `mapstructure:"window"`
	ErrorRateWarning      float64       `mapstructure:"error_rate_warning"`
	ErrorRateDegraded     float64       `mapstructure:"error_rate_degraded"`
	ErrorRateCritical     float64       `mapstructure:"error_rate_critical"`
	HandshakeWarning      time.Duration `mapstructure:"handshake_warning"`
	HandshakeCritical     time.Duration `mapstructure:"handshake_critical"`
	RemediationCooldown   time.Duration `mapstructure:"remediation_cooldown"`
	PredictiveTick        time.Duration `mapstructure:"predictive_tick"`
	PredictiveWindow      time.Duration `mapstructure:"predictive_window"`
	PredictiveConfidence  float64       `mapstructure:"predictive_confidence"`
	CertificateCheckTick  time.Duration `mapstructure:"certificate_check_tick"`
	CertWarningDays       int           `mapstructure:"cert_warning_days"`
	CertCriticalDays      int           `mapstructure:"cert_critical_days"`
	AttemptHistoryLimit   int           `mapstructure:"attempt_history_limit"`
	RecentFailureRefresh  int           `mapstructure:"recent_failure_refresh"`
}

type MetricsConfig struct {
	RawBufferSize      int           `mapstructure:"raw_buffer_size"`
	CollectionInterval time.Duration `mapstructure:"collection_interval"`
	AggregationWindow  time.Duration `mapstructure:"aggregation_window"`
	RetentionHours     int           `mapstructure:"retention_hours"`
	TrendMinSamples    int           `mapstructure:"trend_min_samples"`
	AnomalyWarningZ    float64       `mapstructure:"anomaly_warning_z"`
	AnomalyCriticalZ   float64       `mapstructure:"anomaly_critical_z"`
}

type AlertingConfig struct {
	EvaluationTick  time.Duration `mapstructure:"evaluation_tick"`
	ResolveTick     time.Duration `mapstructure:"resolve_tick"`
	DefaultCooldown time.Duration `mapstructure:"default_cooldown"`
	HistorySize     int           `mapstructure:"history_size"`
	AcquireWarning  time.Duration `mapstructure:"acquire_warning"`
	AcquireCritical time.Duration `mapstructure:"acquire_critical"`
}

type APIConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTDuration    time.Duration `mapstructure:"jwt_duration"`
	OperatorUser   string        `mapstructure:"operator_user"`
	OperatorHash   string        `mapstructure:"operator_password_hash"`
	MaxRequestSize int64         `mapstructure:"max_request_size"`
	CORS           CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type WebSocketConfig struct {
	MaxConnections  int           `mapstructure:"max_connections"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type ExporterConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type EventsConfig struct {
	BufferSize  int `mapstructure:"buffer_size"`
	RecentLimit int `mapstructure:"recent_limit"`
}
