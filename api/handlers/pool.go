package handlers

import (
	"net/http"
	"strconv"

	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
	"github.com/adaptivesql/pooltuner/pkg/validation"
	"github.com/gin-gonic/gin"
)

// PoolService is what the pool endpoints need from the pool core.
type PoolService interface {
	Stats() models.PoolStats
	ScalingHistory() []models.ScalingEvent
	Scale(targetSize, targetOverflow int, reason string) error
	RefreshEngine(reason string) error
}

// LifecycleService exposes the optimizer's registry and analytics.
type LifecycleService interface {
	Connections() []models.ConnectionMetadata
	TotalRecycled() int64
	Strategy() string
}

// WorkloadReporter produces the advisory usage analysis.
type WorkloadReporter interface {
	Report() models.WorkloadReport
}

type PoolHandler struct {
	pool      PoolService
	lifecycle LifecycleService
	workload  WorkloadReporter
	limits    config.PoolConfig
}

func NewPoolHandler(pool PoolService, lifecycle LifecycleService, workload WorkloadReporter, limits config.PoolConfig) *PoolHandler {
	return &PoolHandler{pool: pool, lifecycle: lifecycle, workload: workload, limits: limits}
}

func (h *PoolHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Stats())
}

func (h *PoolHandler) ScalingHistory(c *gin.Context) {
	history := h.pool.ScalingHistory()

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if limit < len(history) {
			history = history[len(history)-limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{"events": history, "count": len(history)})
}

type ScaleRequest struct {
	TargetSize     int    `json:"target_size" binding:"required"`
	TargetOverflow int    `json:"target_overflow"`
	Reason         string `json:"reason"`
}

// Scale handles a manual resize request from an operator.
func (h *PoolHandler) Scale(c *gin.Context) {
	var req ScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := validation.ValidateScaleRequest(req.TargetSize, req.TargetOverflow, h.limits.MaxPoolSize, h.limits.MaxOverflow); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}
	if err := h.pool.Scale(req.TargetSize, req.TargetOverflow, "operator_"+reason); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.pool.Stats())
}

// Refresh rebuilds the engine at current bounds.
func (h *PoolHandler) Refresh(c *gin.Context) {
	if err := h.pool.RefreshEngine("operator_request"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "engine refreshed"})
}

func (h *PoolHandler) Connections(c *gin.Context) {
	conns := h.lifecycle.Connections()
	c.JSON(http.StatusOK, gin.H{
		"connections":    conns,
		"count":          len(conns),
		"total_recycled": h.lifecycle.TotalRecycled(),
		"reuse_strategy": h.lifecycle.Strategy(),
	})
}

func (h *PoolHandler) Workload(c *gin.Context) {
	c.JSON(http.StatusOK, h.workload.Report())
}
