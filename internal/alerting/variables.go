package alerting

import (
	"fmt"

	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// StatsSource supplies the pool snapshot for rule evaluation.
type StatsSource interface {
	Stats() models.PoolStats
}

// HealthSource supplies the transport health snapshot.
type HealthSource interface {
	Report() models.SSLHealthReport
}

// CurrentSource supplies the latest raw metric value per kind.
type CurrentSource interface {
	Current() map[models.MetricKind]float64
}

// Variables builds the metric map rule conditions see. Names are stable API:
// operators write conditions against them.
func Variables(pool StatsSource, health HealthSource, collector CurrentSource) VariableFunc {
	return func() map[string]float64 {
		vars := make(map[string]float64, 24)

		stats := pool.Stats()
		vars["pool.size"] = float64(stats.Size)
		vars["pool.overflow"] = float64(stats.Overflow)
		vars["pool.max_size"] = float64(stats.MaxSize)
		vars["pool.checked_out"] = float64(stats.CheckedOut)
		vars["pool.warmed"] = float64(stats.WarmedConnections)
		vars["pool.utilization"] = stats.Utilization
		vars["pool.acquire_p50_ms"] = float64(stats.AcquireP50.Milliseconds())
		vars["pool.acquire_p95_ms"] = float64(stats.AcquireP95.Milliseconds())
		vars["pool.acquire_p99_ms"] = float64(stats.AcquireP99.Milliseconds())
		vars["pool.exhaustion_errors"] = float64(stats.ExhaustionErrors)
		vars["pool.create_failures"] = float64(stats.CreateFailures)
		vars["pool.engine_rebuilds"] = float64(stats.EngineRebuilds)

		report := health.Report()
		vars["ssl.error_rate"] = report.ErrorRate
		vars["ssl.attempts"] = float64(report.Attempts)
		vars["ssl.failures"] = float64(report.Failures)
		vars["ssl.avg_handshake_ms"] = float64(report.AvgHandshake.Milliseconds())
		vars["health.rank"] = float64(report.Status.Rank())
		if report.Certificate != nil {
			vars["cert.days_until_expiry"] = float64(report.Certificate.DaysUntilExpiry)
		}

		for kind, value := range collector.Current() {
			vars["metric."+string(kind)] = value
		}
		return vars
	}
}

// DefaultRules are the rules installed at startup. Acquisition latency
// thresholds come from alerting.acquire_warning and alerting.acquire_critical.
// Operators can remove or replace any of them through the API.
func DefaultRules(cfg config.AlertingConfig) []models.AlertRule {
	return []models.AlertRule{
		{
			Name:                  "pool_near_exhaustion",
			Category:              models.CategoryPool,
			Severity:              models.AlertCritical,
			Condition:             "pool.utilization >= 0.9",
			ConsecutiveViolations: 2,
			AutoRemediate:         true,
			Actions:               []models.RemediationAction{models.RemediationScaleUp},
			Enabled:               true,
		},
		{
			Name:                  "acquire_latency_high",
			Category:              models.CategoryLatency,
			Severity:              models.AlertWarning,
			Condition:             fmt.Sprintf("pool.acquire_p95_ms > %d", cfg.AcquireWarning.Milliseconds()),
			ConsecutiveViolations: 3,
			AutoRemediate:         true,
			Actions: []models.RemediationAction{
				models.RemediationRecycleIdle,
				models.RemediationScaleUp,
			},
			Enabled: true,
		},
		{
			Name:                  "acquire_latency_critical",
			Category:              models.CategoryLatency,
			Severity:              models.AlertCritical,
			Condition:             fmt.Sprintf("pool.acquire_p99_ms > %d", cfg.AcquireCritical.Milliseconds()),
			ConsecutiveViolations: 2,
			AutoRemediate:         true,
			Actions: []models.RemediationAction{
				models.RemediationScaleUp,
				models.RemediationEmergencyScale,
			},
			Enabled: true,
		},
		{
			Name:                  "ssl_errors_critical",
			Category:              models.CategorySSL,
			Severity:              models.AlertCritical,
			Condition:             "ssl.error_rate >= 0.2 && ssl.attempts >= 10",
			ConsecutiveViolations: 1,
			AutoRemediate:         true,
			Actions: []models.RemediationAction{
				models.RemediationForceReconnect,
				models.RemediationEmergencyScale,
			},
			Enabled: true,
		},
		{
			Name:                  "handshake_slow",
			Category:              models.CategorySSL,
			Severity:              models.AlertWarning,
			Condition:             "ssl.avg_handshake_ms > 2000 && ssl.attempts >= 5",
			ConsecutiveViolations: 2,
			AutoRemediate:         true,
			Actions:               []models.RemediationAction{models.RemediationEngineRefresh},
			Enabled:               true,
		},
		{
			Name:      "certificate_expiring",
			Category:  models.CategoryCertificate,
			Severity:  models.AlertWarning,
			Condition: "cert.days_until_expiry <= 30",
			Enabled:   true,
		},
	}
}
