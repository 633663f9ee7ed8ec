package metrics

import (
	"math"

	"github.com/adaptivesql/pooltuner/pkg/models"
)

// Trend fits a least-squares line over the retained aggregate averages for
// kind. Returns false when fewer than the configured minimum samples exist.
func (c *Collector) Trend(kind models.MetricKind) (models.TrendResult, bool) {
	aggs := c.Aggregates(kind, 0)
	minSamples := c.cfg.TrendMinSamples
	if minSamples <= 0 {
		minSamples = 3
	}
	if len(aggs) < minSamples {
		return models.TrendResult{}, false
	}

	n := float64(len(aggs))
	var sumX, sumY, sumXY, sumXX float64
	for i, agg := range aggs {
		x := float64(i)
		sumX += x
		sumY += agg.Avg
		sumXY += x * agg.Avg
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return models.TrendResult{}, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n
	mean := sumY / n

	// R-squared as confidence.
	var ssRes, ssTot float64
	for i, agg := range aggs {
		fit := intercept + slope*float64(i)
		ssRes += (agg.Avg - fit) * (agg.Avg - fit)
		ssTot += (agg.Avg - mean) * (agg.Avg - mean)
	}
	confidence := 0.0
	if ssTot > 0 {
		confidence = 1 - ssRes/ssTot
		if confidence < 0 {
			confidence = 0
		}
	}

	result := models.TrendResult{
		Kind:       kind,
		Slope:      slope,
		Confidence: confidence,
		Forecast:   intercept + slope*n,
		Samples:    len(aggs),
	}

	// A slope under 1% of the mean per window counts as stable.
	threshold := math.Abs(mean) * 0.01
	switch {
	case slope > threshold:
		result.Direction = models.TrendIncreasing
	case slope < -threshold:
		result.Direction = models.TrendDecreasing
	default:
		result.Direction = models.TrendStable
	}
	return result, true
}
