package handlers

import (
	"net/http"
	"strconv"

	"github.com/adaptivesql/pooltuner/pkg/models"
	"github.com/gin-gonic/gin"
)

// MetricsService exposes the collector's aggregates and derived analysis.
type MetricsService interface {
	Current() map[models.MetricKind]float64
	Kinds() []models.MetricKind
	Aggregates(kind models.MetricKind, limit int) []models.AggregatedMetrics
	Trend(kind models.MetricKind) (models.TrendResult, bool)
	Report(workload models.WorkloadReport) models.AnalyticsReport
}

type MetricsHandler struct {
	metrics  MetricsService
	workload WorkloadReporter
}

func NewMetricsHandler(metrics MetricsService, workload WorkloadReporter) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, workload: workload}
}

func (h *MetricsHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Current())
}

func (h *MetricsHandler) Aggregates(c *gin.Context) {
	kind := models.MetricKind(c.Param("kind"))

	known := false
	for _, k := range h.metrics.Kinds() {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "no aggregates for metric kind", "kind": string(kind)})
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	aggs := h.metrics.Aggregates(kind, limit)
	c.JSON(http.StatusOK, gin.H{"kind": kind, "aggregates": aggs, "count": len(aggs)})
}

func (h *MetricsHandler) Trend(c *gin.Context) {
	kind := models.MetricKind(c.Param("kind"))

	trend, ok := h.metrics.Trend(kind)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not enough samples for trend", "kind": string(kind)})
		return
	}
	c.JSON(http.StatusOK, trend)
}

// Analytics returns the combined advisory report: workload analysis, trends
// and anomalies.
func (h *MetricsHandler) Analytics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Report(h.workload.Report()))
}
