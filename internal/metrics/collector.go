// Package metrics collects raw performance observations, folds them into
// periodic aggregates, and derives trends and anomalies. It also serves the
// Prometheus text exposition endpoint.
package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// Collector is the ingestion point for performance data. Raw points live in a
// fixed ring; aggregates are kept per kind for the retention period.
type Collector struct {
	cfg config.MetricsConfig

	mu      sync.RWMutex
	raw     []models.PerformanceDataPoint
	head    int
	count   int
	current map[models.MetricKind]float64

	aggMu      sync.RWMutex
	aggregates map[models.MetricKind][]models.AggregatedMetrics
	lastFold   time.Time
}

func NewCollector(cfg config.MetricsConfig) *Collector {
	size := cfg.RawBufferSize
	if size <= 0 {
		size = 10000
	}
	return &Collector{
		cfg:        cfg,
		raw:        make([]models.PerformanceDataPoint, size),
		current:    make(map[models.MetricKind]float64),
		aggregates: make(map[models.MetricKind][]models.AggregatedMetrics),
		lastFold:   time.Now(),
	}
}

// Record stores one raw observation. Implements the pool's metric recorder.
func (c *Collector) Record(kind models.MetricKind, value float64, contextID string, tags map[string]string) {
	point := models.PerformanceDataPoint{
		Timestamp: time.Now(),
		Kind:      kind,
		Value:     value,
		ContextID: contextID,
		Tags:      tags,
	}

	c.mu.Lock()
	c.raw[c.head] = point
	c.head = (c.head + 1) % len(c.raw)
	if c.count < len(c.raw) {
		c.count++
	}
	c.current[kind] = value
	c.mu.Unlock()
}

// Current returns the most recent value per kind.
func (c *Collector) Current() map[models.MetricKind]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[models.MetricKind]float64, len(c.current))
	for k, v := range c.current {
		out[k] = v
	}
	return out
}

// Aggregate folds raw points recorded since the last fold into one aggregate
// per kind and prunes aggregates past retention. Runs on the aggregation
// window tick.
func (c *Collector) Aggregate(ctx context.Context) {
	now := time.Now()

	c.aggMu.RLock()
	since := c.lastFold
	c.aggMu.RUnlock()

	c.mu.RLock()
	byKind := make(map[models.MetricKind][]float64)
	for i := 0; i < c.count; i++ {
		idx := (c.head - 1 - i + len(c.raw)) % len(c.raw)
		point := c.raw[idx]
		if point.Timestamp.Before(since) {
			break
		}
		byKind[point.Kind] = append(byKind[point.Kind], point.Value)
	}
	c.mu.RUnlock()

	retention := time.Duration(c.cfg.RetentionHours) * time.Hour
	cutoff := now.Add(-retention)

	c.aggMu.Lock()
	c.lastFold = now
	for kind, values := range byKind {
		agg := fold(kind, values, since, now)
		c.aggregates[kind] = append(c.aggregates[kind], agg)
	}
	for kind, aggs := range c.aggregates {
		trimmed := aggs[:0]
		for _, agg := range aggs {
			if agg.WindowEnd.After(cutoff) {
				trimmed = append(trimmed, agg)
			}
		}
		c.aggregates[kind] = trimmed
	}
	c.aggMu.Unlock()

	logger.WithComponent("metrics").Debugf("Aggregated %d metric kinds", len(byKind))
}

func fold(kind models.MetricKind, values []float64, start, end time.Time) models.AggregatedMetrics {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	agg := models.AggregatedMetrics{
		Kind:        kind,
		WindowStart: start,
		WindowEnd:   end,
		SampleCount: len(sorted),
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Median:      quantile(sorted, 0.50),
		P95:         quantile(sorted, 0.95),
		P99:         quantile(sorted, 0.99),
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	agg.Avg = sum / float64(len(sorted))
	return agg
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

// Aggregates returns up to limit most recent aggregates for kind, oldest
// first. limit <= 0 returns all retained.
func (c *Collector) Aggregates(kind models.MetricKind, limit int) []models.AggregatedMetrics {
	c.aggMu.RLock()
	defer c.aggMu.RUnlock()
	aggs := c.aggregates[kind]
	if limit > 0 && len(aggs) > limit {
		aggs = aggs[len(aggs)-limit:]
	}
	out := make([]models.AggregatedMetrics, len(aggs))
	copy(out, aggs)
	return out
}

// Kinds lists the metric kinds with at least one retained aggregate.
func (c *Collector) Kinds() []models.MetricKind {
	c.aggMu.RLock()
	defer c.aggMu.RUnlock()
	kinds := make([]models.MetricKind, 0, len(c.aggregates))
	for kind, aggs := range c.aggregates {
		if len(aggs) > 0 {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Report combines trends and anomalies across all kinds with the workload
// analysis supplied by the caller.
func (c *Collector) Report(workload models.WorkloadReport) models.AnalyticsReport {
	report := models.AnalyticsReport{
		GeneratedAt: time.Now(),
		Workload:    workload,
	}
	for _, kind := range c.Kinds() {
		if trend, ok := c.Trend(kind); ok {
			report.Trends = append(report.Trends, trend)
		}
		if anomaly, ok := c.DetectAnomaly(kind); ok {
			report.Anomalies = append(report.Anomalies, anomaly)
		}
	}
	return report
}
