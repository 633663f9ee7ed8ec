package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// PoolControls is the slice of the pool the dispatcher drives. Scale targets
// are clamped by the pool.
type PoolControls interface {
	Scale(targetSize, targetOverflow int, reason string) error
	RefreshEngine(reason string) error
	DropWarmCache() int
	Size() (size, overflow int)
}

// IdleRecycler evicts idle warmed connections; implemented by the lifecycle
// optimizer.
type IdleRecycler interface {
	RecycleIdle() int
}

// Executor runs one remediation action on behalf of an alert.
type Executor interface {
	Execute(ctx context.Context, action models.RemediationAction, alertID string) *models.RemediationResult
}

// Dispatcher maps every remediation action an alert rule may carry onto pool
// and lifecycle operations. Unlike the health remediator it carries no
// cooldowns: rule cooldowns gate how often alerts fire in the first place.
type Dispatcher struct {
	pool      PoolControls
	recycler  IdleRecycler
	scaleStep int
}

func NewDispatcher(pool PoolControls, recycler IdleRecycler, scaleStep int) *Dispatcher {
	if scaleStep <= 0 {
		scaleStep = 2
	}
	return &Dispatcher{pool: pool, recycler: recycler, scaleStep: scaleStep}
}

func (d *Dispatcher) Execute(ctx context.Context, action models.RemediationAction, alertID string) *models.RemediationResult {
	start := time.Now()
	err := d.run(ctx, action)

	result := &models.RemediationResult{
		ID:       models.NewUUID(),
		AlertID:  alertID,
		Action:   action,
		Success:  err == nil,
		Duration: time.Since(start),
		At:       start,
	}
	if err != nil {
		result.Error = err.Error()
		logger.WithComponent("alerting").Warnf("Remediation %s failed: %v", action, err)
	} else {
		logger.WithComponent("alerting").Infof("Remediation %s applied", action)
	}
	return result
}

func (d *Dispatcher) run(ctx context.Context, action models.RemediationAction) error {
	switch action {
	case models.RemediationRetry, models.RemediationNone, models.RemediationCertValidation:
		return nil

	case models.RemediationEngineRefresh:
		return d.pool.RefreshEngine("alert_remediation")

	case models.RemediationForceReconnect:
		d.pool.DropWarmCache()
		return d.pool.RefreshEngine("alert_force_reconnect")

	case models.RemediationClearWarmCache:
		d.pool.DropWarmCache()
		return nil

	case models.RemediationEmergencyScale:
		size, overflow := d.pool.Size()
		return d.pool.Scale(size*2, overflow*2, "alert_emergency")

	case models.RemediationScaleUp:
		size, overflow := d.pool.Size()
		return d.pool.Scale(size+d.scaleStep, overflow, "alert_scale_up")

	case models.RemediationScaleDown:
		size, overflow := d.pool.Size()
		return d.pool.Scale(size-d.scaleStep, overflow, "alert_scale_down")

	case models.RemediationRecycleIdle:
		recycled := d.recycler.RecycleIdle()
		logger.WithComponent("alerting").Infof("Recycled %d idle connections", recycled)
		return nil

	default:
		return fmt.Errorf("unknown remediation action %q", action)
	}
}
