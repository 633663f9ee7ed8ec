package metrics

import (
	"net/http"
	"strconv"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// StatsSource supplies the pool snapshot for exposition.
type StatsSource interface {
	Stats() models.PoolStats
	ScalingHistory() []models.ScalingEvent
}

// HealthSource supplies the transport health snapshot.
type HealthSource interface {
	Report() models.SSLHealthReport
}

// Exporter serves the Prometheus text exposition format on /metrics. The
// format is simple enough that writing it directly beats carrying a client
// library for a read-only endpoint.
type Exporter struct {
	pool      StatsSource
	health    HealthSource
	collector *Collector
}

func NewExporter(pool StatsSource, health HealthSource, collector *Collector) *Exporter {
	return &Exporter{pool: pool, health: health, collector: collector}
}

func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		stats := e.pool.Stats()
		writeMetric(w, "pooltuner_pool_size", nil, float64(stats.Size))
		writeMetric(w, "pooltuner_pool_overflow", nil, float64(stats.Overflow))
		writeMetric(w, "pooltuner_pool_checked_out", nil, float64(stats.CheckedOut))
		writeMetric(w, "pooltuner_pool_warmed_connections", nil, float64(stats.WarmedConnections))
		writeMetric(w, "pooltuner_pool_utilization", nil, stats.Utilization)
		writeMetric(w, "pooltuner_pool_acquisitions_total", nil, float64(stats.TotalAcquisitions))
		writeMetric(w, "pooltuner_pool_releases_total", nil, float64(stats.TotalReleases))
		writeMetric(w, "pooltuner_pool_warm_hits_total", nil, float64(stats.WarmHits))
		writeMetric(w, "pooltuner_pool_create_failures_total", nil, float64(stats.CreateFailures))
		writeMetric(w, "pooltuner_pool_exhaustion_errors_total", nil, float64(stats.ExhaustionErrors))
		writeMetric(w, "pooltuner_pool_engine_rebuilds_total", nil, float64(stats.EngineRebuilds))
		writeMetric(w, "pooltuner_pool_emergency_scale_requests_total", nil, float64(stats.EmergencyScaleReqs))
		writeMetric(w, "pooltuner_pool_acquire_ms", map[string]string{"quantile": "0.5"}, float64(stats.AcquireP50.Milliseconds()))
		writeMetric(w, "pooltuner_pool_acquire_ms", map[string]string{"quantile": "0.95"}, float64(stats.AcquireP95.Milliseconds()))
		writeMetric(w, "pooltuner_pool_acquire_ms", map[string]string{"quantile": "0.99"}, float64(stats.AcquireP99.Milliseconds()))
		writeMetric(w, "pooltuner_pool_workload", map[string]string{"pattern": string(stats.Workload)}, 1)

		report := e.health.Report()
		writeMetric(w, "pooltuner_ssl_error_rate", nil, report.ErrorRate)
		writeMetric(w, "pooltuner_ssl_attempts_total", nil, float64(report.Attempts))
		writeMetric(w, "pooltuner_ssl_failures_total", nil, float64(report.Failures))
		writeMetric(w, "pooltuner_ssl_avg_handshake_ms", nil, float64(report.AvgHandshake.Milliseconds()))
		writeMetric(w, "pooltuner_health_status", map[string]string{"status": string(report.Status)}, float64(report.Status.Rank()))
		for errType, count := range report.ErrorsByType {
			writeMetric(w, "pooltuner_ssl_errors_total", map[string]string{"type": string(errType)}, float64(count))
		}
		if report.Certificate != nil {
			writeMetric(w, "pooltuner_certificate_days_until_expiry", nil, float64(report.Certificate.DaysUntilExpiry))
		}

		for kind, value := range e.collector.Current() {
			writeMetric(w, "pooltuner_metric_current", map[string]string{"kind": string(kind)}, value)
		}
	})
}

func writeMetric(w http.ResponseWriter, name string, labels map[string]string, value float64) {
	labelStr := ""
	if len(labels) > 0 {
		labelStr = "{"
		first := true
		for k, v := range labels {
			if !first {
				labelStr += ","
			}
			labelStr += k + `="` + v + `"`
			first = false
		}
		labelStr += "}"
	}
	w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(value, 'f', -1, 64) + "\n"))
}

// StartServer serves /metrics on its own port. Errors are logged, not fatal:
// the pool keeps running without exposition.
func (e *Exporter) StartServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())

	addr := ":" + strconv.Itoa(port)
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
}
