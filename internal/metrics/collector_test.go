package metrics_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivesql/pooltuner/internal/metrics"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

func testMetricsConfig() config.MetricsConfig {
	return config.MetricsConfig{
		RawBufferSize:     1000,
		AggregationWindow: 5 * time.Minute,
		RetentionHours:    24,
		TrendMinSamples:   4,
		AnomalyWarningZ:   2.0,
		AnomalyCriticalZ:  3.0,
	}
}

// aggregateWith folds one batch of values into a single aggregate for kind.
func aggregateWith(c *metrics.Collector, kind models.MetricKind, values ...float64) {
	for _, v := range values {
		c.Record(kind, v, "test", nil)
	}
	c.Aggregate(context.Background())
}

func TestCollector_CurrentTracksLatestValue(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())

	c.Record(models.MetricLatency, 12, "web", nil)
	c.Record(models.MetricLatency, 34, "web", nil)
	c.Record(models.MetricUtilization, 0.5, "", nil)

	current := c.Current()
	assert.Equal(t, 34.0, current[models.MetricLatency])
	assert.Equal(t, 0.5, current[models.MetricUtilization])
}

func TestCollector_AggregateFoldsWindow(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())

	values := make([]float64, 0, 100)
	for i := 1; i <= 100; i++ {
		values = append(values, float64(i))
	}
	aggregateWith(c, models.MetricLatency, values...)

	aggs := c.Aggregates(models.MetricLatency, 0)
	require.Len(t, aggs, 1)
	agg := aggs[0]
	assert.Equal(t, 100, agg.SampleCount)
	assert.Equal(t, 1.0, agg.Min)
	assert.Equal(t, 100.0, agg.Max)
	assert.InDelta(t, 50.5, agg.Avg, 0.001)
	assert.Equal(t, 50.0, agg.Median)
	assert.Equal(t, 95.0, agg.P95)
	assert.Equal(t, 99.0, agg.P99)
}

func TestCollector_AggregateSeparatesKinds(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())

	c.Record(models.MetricLatency, 10, "web", nil)
	c.Record(models.MetricThroughput, 1, "web", nil)
	c.Aggregate(context.Background())

	assert.Equal(t, []models.MetricKind{models.MetricLatency, models.MetricThroughput}, c.Kinds())
	assert.Len(t, c.Aggregates(models.MetricLatency, 0), 1)
	assert.Len(t, c.Aggregates(models.MetricThroughput, 0), 1)
}

func TestCollector_AggregateSkipsAlreadyFoldedPoints(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())

	aggregateWith(c, models.MetricLatency, 10)
	// No new points: the second fold must not duplicate the first.
	c.Aggregate(context.Background())

	assert.Len(t, c.Aggregates(models.MetricLatency, 0), 1)
}

func TestCollector_AggregatesLimit(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())

	for i := 0; i < 5; i++ {
		aggregateWith(c, models.MetricLatency, float64(i))
	}

	all := c.Aggregates(models.MetricLatency, 0)
	require.Len(t, all, 5)

	last2 := c.Aggregates(models.MetricLatency, 2)
	require.Len(t, last2, 2)
	assert.Equal(t, all[3].Avg, last2[0].Avg)
	assert.Equal(t, all[4].Avg, last2[1].Avg)
}

func TestTrend_Directions(t *testing.T) {
	tests := []struct {
		name     string
		averages []float64
		expected models.TrendDirection
	}{
		{"increasing", []float64{10, 20, 30, 40}, models.TrendIncreasing},
		{"decreasing", []float64{40, 30, 20, 10}, models.TrendDecreasing},
		{"stable", []float64{100, 100, 100, 100}, models.TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := metrics.NewCollector(testMetricsConfig())
			for _, avg := range tt.averages {
				aggregateWith(c, models.MetricLatency, avg)
			}

			trend, ok := c.Trend(models.MetricLatency)
			require.True(t, ok)
			assert.Equal(t, tt.expected, trend.Direction)
			assert.Equal(t, 4, trend.Samples)
		})
	}
}

func TestTrend_PerfectLinearFit(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())
	for _, avg := range []float64{10, 20, 30, 40} {
		aggregateWith(c, models.MetricLatency, avg)
	}

	trend, ok := c.Trend(models.MetricLatency)
	require.True(t, ok)
	assert.InDelta(t, 10.0, trend.Slope, 0.001)
	assert.InDelta(t, 1.0, trend.Confidence, 0.001)
	assert.InDelta(t, 50.0, trend.Forecast, 0.001)
}

func TestTrend_NeedsMinimumSamples(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())
	for _, avg := range []float64{10, 20, 30} {
		aggregateWith(c, models.MetricLatency, avg)
	}

	_, ok := c.Trend(models.MetricLatency)
	assert.False(t, ok)
}

func TestDetectAnomaly_Spike(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())
	for _, avg := range []float64{10, 12, 11, 9} {
		aggregateWith(c, models.MetricLatency, avg)
	}
	aggregateWith(c, models.MetricLatency, 30)

	anomaly, ok := c.DetectAnomaly(models.MetricLatency)
	require.True(t, ok)
	assert.Equal(t, models.AnomalyCritical, anomaly.Severity)
	assert.Equal(t, 30.0, anomaly.Value)
	assert.InDelta(t, 10.5, anomaly.Expected, 0.001)
	assert.Greater(t, anomaly.ZScore, 3.0)
}

func TestDetectAnomaly_ModerateDeviationIsWarning(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())
	for _, avg := range []float64{10, 12, 11, 9} {
		aggregateWith(c, models.MetricLatency, avg)
	}
	// Baseline mean 10.5, stddev ~1.118: 13.3 sits between 2 and 3 sigma.
	aggregateWith(c, models.MetricLatency, 13.3)

	anomaly, ok := c.DetectAnomaly(models.MetricLatency)
	require.True(t, ok)
	assert.Equal(t, models.AnomalyWarning, anomaly.Severity)
}

func TestDetectAnomaly_QuietWithinBand(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())
	for _, avg := range []float64{10, 12, 11, 9, 10.5} {
		aggregateWith(c, models.MetricLatency, avg)
	}

	_, ok := c.DetectAnomaly(models.MetricLatency)
	assert.False(t, ok)
}

func TestCollector_Report(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())
	for _, avg := range []float64{10, 20, 30, 40} {
		aggregateWith(c, models.MetricLatency, avg)
	}

	report := c.Report(models.WorkloadReport{Pattern: models.WorkloadModerate})
	assert.Equal(t, models.WorkloadModerate, report.Workload.Pattern)
	require.Len(t, report.Trends, 1)
	assert.Equal(t, models.TrendIncreasing, report.Trends[0].Direction)
}

type staticStats struct {
	stats models.PoolStats
}

func (s staticStats) Stats() models.PoolStats               { return s.stats }
func (s staticStats) ScalingHistory() []models.ScalingEvent { return nil }

type staticHealth struct {
	report models.SSLHealthReport
}

func (s staticHealth) Report() models.SSLHealthReport { return s.report }

func TestExporter_TextExposition(t *testing.T) {
	c := metrics.NewCollector(testMetricsConfig())
	c.Record(models.MetricLatency, 42, "web", nil)

	exporter := metrics.NewExporter(
		staticStats{stats: models.PoolStats{Size: 10, Overflow: 5, CheckedOut: 3, Utilization: 0.2, Workload: models.WorkloadLow}},
		staticHealth{report: models.SSLHealthReport{Status: models.HealthGood, Attempts: 7, ErrorRate: 0.1}},
		c,
	)

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "pooltuner_pool_size 10\n")
	assert.Contains(t, body, "pooltuner_pool_checked_out 3\n")
	assert.Contains(t, body, "pooltuner_pool_utilization 0.2\n")
	assert.Contains(t, body, "pooltuner_ssl_attempts_total 7\n")
	assert.Contains(t, body, `pooltuner_health_status{status="good"} 1`)
	assert.Contains(t, body, `pooltuner_metric_current{kind="latency"} 42`)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}
