package metrics

import (
	"math"
	"time"

	"github.com/adaptivesql/pooltuner/pkg/models"
)

// DetectAnomaly compares the newest aggregate for kind against the mean and
// standard deviation of the preceding ones. Returns false when the deviation
// stays under the warning threshold or history is too thin.
func (c *Collector) DetectAnomaly(kind models.MetricKind) (models.Anomaly, bool) {
	aggs := c.Aggregates(kind, 0)
	if len(aggs) < 4 {
		return models.Anomaly{}, false
	}

	latest := aggs[len(aggs)-1]
	baseline := aggs[:len(aggs)-1]

	var sum float64
	for _, agg := range baseline {
		sum += agg.Avg
	}
	mean := sum / float64(len(baseline))

	var variance float64
	for _, agg := range baseline {
		variance += (agg.Avg - mean) * (agg.Avg - mean)
	}
	stddev := math.Sqrt(variance / float64(len(baseline)))
	if stddev == 0 {
		return models.Anomaly{}, false
	}

	z := (latest.Avg - mean) / stddev
	if math.Abs(z) < c.cfg.AnomalyWarningZ {
		return models.Anomaly{}, false
	}

	severity := models.AnomalyWarning
	if math.Abs(z) >= c.cfg.AnomalyCriticalZ {
		severity = models.AnomalyCritical
	}

	return models.Anomaly{
		Kind:      kind,
		Timestamp: time.Now(),
		Value:     latest.Avg,
		Expected:  mean,
		ZScore:    z,
		Severity:  severity,
	}, true
}
