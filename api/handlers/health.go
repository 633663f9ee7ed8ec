package handlers

import (
	"net/http"
	"time"

	"github.com/adaptivesql/pooltuner/pkg/models"
	"github.com/gin-gonic/gin"
)

// HealthService exposes the transport health monitor.
type HealthService interface {
	Report() models.SSLHealthReport
	Status() models.HealthStatus
}

// RemediationHistory exposes past remediation attempts.
type RemediationHistory interface {
	History() []models.RemediationResult
}

type HealthHandler struct {
	health       HealthService
	remediations RemediationHistory
}

func NewHealthHandler(health HealthService, remediations RemediationHistory) *HealthHandler {
	return &HealthHandler{health: health, remediations: remediations}
}

// SSLReport returns the full transport health report.
func (h *HealthHandler) SSLReport(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Report())
}

func (h *HealthHandler) Remediations(c *gin.Context) {
	history := h.remediations.History()
	c.JSON(http.StatusOK, gin.H{"remediations": history, "count": len(history)})
}

type ProbeResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health is the liveness-plus-health probe: degraded transport is reported
// but still returns 200; only Critical flips to 503.
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.health.Status()
	statusCode := http.StatusOK
	if status == models.HealthCritical {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"status":    string(status),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, ProbeResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if h.health.Status() == models.HealthCritical {
		c.JSON(http.StatusServiceUnavailable, ProbeResponse{
			Status:    "not ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, ProbeResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
