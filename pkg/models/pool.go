package models

import "time"

// WorkloadPattern is a coarse classification of recent pool utilization used
// to bias scaling decisions.
type WorkloadPattern string

const (
	WorkloadLow      WorkloadPattern = "low"
	WorkloadModerate WorkloadPattern = "moderate"
	WorkloadHigh     WorkloadPattern = "high"
	WorkloadPeak     WorkloadPattern = "peak"
	WorkloadBurst    WorkloadPattern = "burst"
)

// ClassifyWorkload maps a utilization fraction to a workload pattern. Burst is
// detected separately from the utilization delta and overrides this result.
func ClassifyWorkload(utilization float64) WorkloadPattern {
	switch {
	case utilization >= 0.85:
		return WorkloadPeak
	case utilization >= 0.6:
		return WorkloadHigh
	case utilization >= 0.3:
		return WorkloadModerate
	default:
		return WorkloadLow
	}
}

type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionMaintain  ScalingAction = "maintain"
)

type ScalingEventStatus string

const (
	ScalingEventSuccess ScalingEventStatus = "success"
	ScalingEventFailed  ScalingEventStatus = "failed"
)

// ScalingEvent records one executed pool resize. Events are kept in a capped,
// append-only ring.
type ScalingEvent struct {
	ID            string             `json:"id"`
	Timestamp     time.Time          `json:"timestamp"`
	Action        ScalingAction      `json:"action"`
	OldSize       int                `json:"old_size"`
	NewSize       int                `json:"new_size"`
	OldOverflow   int                `json:"old_overflow"`
	NewOverflow   int                `json:"new_overflow"`
	TriggerReason string             `json:"trigger_reason"`
	Workload      WorkloadPattern    `json:"workload_pattern"`
	Utilization   float64            `json:"utilization"`
	Status        ScalingEventStatus `json:"status"`
}

// PoolStats is the operator-facing snapshot of pool state.
type PoolStats struct {
	Size               int             `json:"size"`
	Overflow           int             `json:"overflow"`
	BaseSize           int             `json:"base_size"`
	MaxSize            int             `json:"max_size"`
	CheckedOut         int             `json:"checked_out"`
	WarmedConnections  int             `json:"warmed_connections"`
	Workload           WorkloadPattern `json:"workload_pattern"`
	Utilization        float64         `json:"utilization"`
	AcquireP50         time.Duration   `json:"acquire_p50"`
	AcquireP95         time.Duration   `json:"acquire_p95"`
	AcquireP99         time.Duration   `json:"acquire_p99"`
	TotalAcquisitions  int64           `json:"total_acquisitions"`
	TotalReleases      int64           `json:"total_releases"`
	WarmHits           int64           `json:"warm_hits"`
	CreateFailures     int64           `json:"create_failures"`
	ExhaustionErrors   int64           `json:"exhaustion_errors"`
	EngineRebuilds     int64           `json:"engine_rebuilds"`
	LastScaledAt       *time.Time      `json:"last_scaled_at,omitempty"`
	LastScaleReason    string          `json:"last_scale_reason,omitempty"`
	EmergencyScaleReqs int64           `json:"emergency_scale_requests"`
}

// WorkloadReport is the advisory usage-pattern analysis surfaced by the
// lifecycle optimizer.
type WorkloadReport struct {
	GeneratedAt        time.Time                 `json:"generated_at"`
	WindowStart        time.Time                 `json:"window_start"`
	WindowEnd          time.Time                 `json:"window_end"`
	Pattern            WorkloadPattern           `json:"pattern"`
	AvgUtilization     float64                   `json:"avg_utilization"`
	PeakUtilization    float64                   `json:"peak_utilization"`
	Contexts           []ContextUsage            `json:"contexts"`
	PeakUsageHours     []int                     `json:"peak_usage_hours"`
	DominantQueryKinds map[string]int64          `json:"dominant_query_kinds,omitempty"`
	SessionDurations   map[string]time.Duration  `json:"avg_session_durations,omitempty"`
}

// ContextUsage aggregates usage events for one caller context.
type ContextUsage struct {
	ContextID          string        `json:"context_id"`
	Sessions           int64         `json:"sessions"`
	AvgSessionDuration time.Duration `json:"avg_session_duration"`
	ErrorCount         int64         `json:"error_count"`
	LastSeen           time.Time     `json:"last_seen"`
	DominantKind       string        `json:"dominant_kind,omitempty"`
}
