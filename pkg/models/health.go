package models

import "time"

// HealthStatus classifies aggregate SSL/transport health over the trailing
// observation window.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthWarning   HealthStatus = "warning"
	HealthDegraded  HealthStatus = "degraded"
	HealthCritical  HealthStatus = "critical"
)

// Rank orders statuses from best (0) to worst. Used to detect downgrades.
func (h HealthStatus) Rank() int {
	switch h {
	case HealthExcellent:
		return 0
	case HealthGood:
		return 1
	case HealthWarning:
		return 2
	case HealthDegraded:
		return 3
	case HealthCritical:
		return 4
	default:
		return 1
	}
}

// SSLErrorType buckets connection-attempt failures for remediation selection.
type SSLErrorType string

const (
	SSLErrorNone        SSLErrorType = ""
	SSLErrorHandshake   SSLErrorType = "handshake"
	SSLErrorTimeout     SSLErrorType = "timeout"
	SSLErrorCertificate SSLErrorType = "certificate"
	SSLErrorReset       SSLErrorType = "reset"
	SSLErrorOther       SSLErrorType = "other"
)

// SSLPerformanceMetric records a single connection attempt outcome.
type SSLPerformanceMetric struct {
	Timestamp         time.Time     `json:"timestamp"`
	ContextID         string        `json:"context_id"`
	HandshakeDuration time.Duration `json:"handshake_duration"`
	Success           bool          `json:"success"`
	ErrorType         SSLErrorType  `json:"error_type,omitempty"`
}

// RemediationAction is an automated corrective action dispatched by the health
// monitor or the alerting engine.
type RemediationAction string

const (
	RemediationNone            RemediationAction = "none"
	RemediationRetry           RemediationAction = "retry"
	RemediationEngineRefresh   RemediationAction = "engine_refresh"
	RemediationForceReconnect  RemediationAction = "force_reconnect"
	RemediationEmergencyScale  RemediationAction = "emergency_scale"
	RemediationCertValidation  RemediationAction = "certificate_validation"
	RemediationScaleUp         RemediationAction = "scale_up"
	RemediationScaleDown       RemediationAction = "scale_down"
	RemediationRecycleIdle     RemediationAction = "recycle_idle"
	RemediationClearWarmCache  RemediationAction = "clear_warm_cache"
)

// CertificateInfo describes the server certificate presented by the database
// endpoint. Refreshed on a long (hourly) interval.
type CertificateInfo struct {
	Subject         string    `json:"subject"`
	Issuer          string    `json:"issuer"`
	NotAfter        time.Time `json:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Valid           bool      `json:"valid"`
	CheckedAt       time.Time `json:"checked_at"`
}

// SSLHealthReport is the operator-facing view of transport health.
type SSLHealthReport struct {
	GeneratedAt       time.Time          `json:"generated_at"`
	Status            HealthStatus       `json:"status"`
	WindowStart       time.Time          `json:"window_start"`
	Attempts          int64              `json:"attempts"`
	Failures          int64              `json:"failures"`
	ErrorRate         float64            `json:"error_rate"`
	AvgHandshake      time.Duration      `json:"avg_handshake"`
	ErrorsByType      map[SSLErrorType]int64 `json:"errors_by_type,omitempty"`
	Certificate       *CertificateInfo   `json:"certificate,omitempty"`
	LastRemediation   RemediationAction  `json:"last_remediation,omitempty"`
	LastRemediationAt *time.Time         `json:"last_remediation_at,omitempty"`
	PredictiveAlert   *PredictiveAlert   `json:"predictive_alert,omitempty"`
}

// PredictiveAlert is raised when the recent window is materially worse than
// the preceding one, before the reactive classifier would fire.
type PredictiveAlert struct {
	RaisedAt          time.Time `json:"raised_at"`
	Confidence        float64   `json:"confidence"`
	ErrorRateDelta    float64   `json:"error_rate_delta"`
	HandshakeDelta    float64   `json:"handshake_delta"`
	ProactiveApplied  bool      `json:"proactive_applied"`
}
