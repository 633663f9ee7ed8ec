package models

import "time"

// MetricKind is the type of a recorded performance data point.
type MetricKind string

const (
	MetricLatency     MetricKind = "latency"
	MetricThroughput  MetricKind = "throughput"
	MetricErrorRate   MetricKind = "error_rate"
	MetricUtilization MetricKind = "utilization"
	MetricSSL         MetricKind = "ssl"
	MetricResource    MetricKind = "resource"
)

// PerformanceDataPoint is a single raw metric observation.
type PerformanceDataPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      MetricKind        `json:"kind"`
	Value     float64           `json:"value"`
	ContextID string            `json:"context_id,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// AggregatedMetrics is the per-kind fold of raw points over one aggregation
// interval (5 minutes by default).
type AggregatedMetrics struct {
	Kind        MetricKind `json:"kind"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Avg         float64    `json:"avg"`
	Median      float64    `json:"median"`
	P95         float64    `json:"p95"`
	P99         float64    `json:"p99"`
	Min         float64    `json:"min"`
	Max         float64    `json:"max"`
	SampleCount int        `json:"sample_count"`
}

// TrendDirection of a metric over recent aggregates.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendResult is a linear-regression fit over recent aggregates.
type TrendResult struct {
	Kind       MetricKind     `json:"kind"`
	Direction  TrendDirection `json:"direction"`
	Slope      float64        `json:"slope"`
	Confidence float64        `json:"confidence"`
	Forecast   float64        `json:"forecast"`
	Samples    int            `json:"samples"`
}

// AnomalySeverity of a z-score deviation.
type AnomalySeverity string

const (
	AnomalyWarning  AnomalySeverity = "warning"
	AnomalyCritical AnomalySeverity = "critical"
)

// Anomaly flags an aggregate that deviates from the prior window's mean by
// more than the configured number of standard deviations.
type Anomaly struct {
	Kind      MetricKind      `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Value     float64         `json:"value"`
	Expected  float64         `json:"expected"`
	ZScore    float64         `json:"z_score"`
	Severity  AnomalySeverity `json:"severity"`
}

// AnalyticsReport is the combined advisory view: lifecycle usage analysis plus
// metric trends and anomalies.
type AnalyticsReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Workload    WorkloadReport `json:"workload"`
	Trends      []TrendResult  `json:"trends"`
	Anomalies   []Anomaly      `json:"anomalies"`
}
