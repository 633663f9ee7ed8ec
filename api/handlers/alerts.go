package handlers

import (
	"net/http"

	"github.com/adaptivesql/pooltuner/pkg/models"
	"github.com/adaptivesql/pooltuner/pkg/validation"
	"github.com/gin-gonic/gin"
)

// AlertService is the alerting engine surface the API uses.
type AlertService interface {
	Status() models.AlertingStatus
	Rules() []models.AlertRule
	AddRule(rule models.AlertRule) error
	RemoveRule(ruleID string) bool
	Acknowledge(alertID string) bool
	Resolve(alertID string) bool
}

type AlertsHandler struct {
	alerts AlertService
}

func NewAlertsHandler(alerts AlertService) *AlertsHandler {
	return &AlertsHandler{alerts: alerts}
}

func (h *AlertsHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.alerts.Status())
}

func (h *AlertsHandler) ListRules(c *gin.Context) {
	rules := h.alerts.Rules()
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

func (h *AlertsHandler) CreateRule(c *gin.Context) {
	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := validation.ValidateAlertRule(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.alerts.AddRule(rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "rule created", "name": rule.Name})
}

func (h *AlertsHandler) DeleteRule(c *gin.Context) {
	if !h.alerts.RemoveRule(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rule removed"})
}

func (h *AlertsHandler) Acknowledge(c *gin.Context) {
	if !h.alerts.Acknowledge(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "open alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

func (h *AlertsHandler) Resolve(c *gin.Context) {
	if !h.alerts.Resolve(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "open alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}
