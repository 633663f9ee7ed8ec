package models

import "time"

type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

type AlertCategory string

const (
	CategoryPool        AlertCategory = "pool"
	CategoryLatency     AlertCategory = "latency"
	CategoryErrors      AlertCategory = "errors"
	CategorySSL         AlertCategory = "ssl"
	CategoryCertificate AlertCategory = "certificate"
	CategoryResource    AlertCategory = "resource"
)

// AlertRule is an operator-defined rule evaluated on every alerting tick. The
// condition is a restricted expression over the metric map; it is data, never
// executable code.
type AlertRule struct {
	ID                    string              `json:"id"`
	Name                  string              `json:"name"`
	Category              AlertCategory       `json:"category"`
	Severity              AlertSeverity       `json:"severity"`
	Condition             string              `json:"condition"`
	Window                time.Duration       `json:"window"`
	ConsecutiveViolations int                 `json:"consecutive_violations"`
	Cooldown              time.Duration       `json:"cooldown"`
	AutoRemediate         bool                `json:"auto_remediate"`
	Actions               []RemediationAction `json:"actions,omitempty"`
	Enabled               bool                `json:"enabled"`
}

type AlertResolution string

const (
	AlertOpen         AlertResolution = "open"
	AlertAcknowledged AlertResolution = "acknowledged"
	AlertResolved     AlertResolution = "resolved"
)

// Alert is one firing of a rule.
type Alert struct {
	ID                   string          `json:"id"`
	RuleID               string          `json:"rule_id"`
	RuleName             string          `json:"rule_name"`
	Severity             AlertSeverity   `json:"severity"`
	TriggeredAt          time.Time       `json:"triggered_at"`
	CurrentValue         float64         `json:"current_value"`
	Condition            string          `json:"condition"`
	Resolution           AlertResolution `json:"resolution"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty"`
	RemediationAttempted bool            `json:"remediation_attempted"`
	Message              string          `json:"message,omitempty"`
}

// RemediationResult records one remediation attempt made for an alert.
type RemediationResult struct {
	ID       string            `json:"id"`
	AlertID  string            `json:"alert_id"`
	Action   RemediationAction `json:"action"`
	Success  bool              `json:"success"`
	Duration time.Duration     `json:"duration"`
	Error    string            `json:"error,omitempty"`
	At       time.Time         `json:"at"`
}

// AlertingStatus is the operator-facing view of the alerting engine.
type AlertingStatus struct {
	Running          bool                `json:"running"`
	RuleCount        int                 `json:"rule_count"`
	OpenAlerts       []Alert             `json:"open_alerts"`
	RecentAlerts     []Alert             `json:"recent_alerts"`
	RecentResults    []RemediationResult `json:"recent_remediations"`
	LastEvaluatedAt  *time.Time          `json:"last_evaluated_at,omitempty"`
	EvaluationErrors int64               `json:"evaluation_errors"`
}
