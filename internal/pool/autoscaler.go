package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// Autoscaler drives automatic pool resizing from observed utilization. Each
// tick it classifies the workload, applies the threshold rules and executes
// at most one scaling decision, subject to the cooldown. Emergency requests
// raised by failed acquisitions bypass the cooldown.
type Autoscaler struct {
	pool *Pool
	cfg  config.PoolConfig

	mu              sync.Mutex
	lastScaleTime   time.Time
	lastUtilization float64
	sustainedLow    int
}

// sustainedLowTicks is how many consecutive below-threshold ticks are needed
// before scaling down. Scale-up reacts on a single tick; scale-down waits so
// a momentary lull does not shed capacity.
const sustainedLowTicks = 3

// burstDelta is the single-tick utilization jump treated as a burst.
const burstDelta = 0.3

func NewAutoscaler(pool *Pool, cfg config.PoolConfig) *Autoscaler {
	return &Autoscaler{pool: pool, cfg: cfg}
}

// Tick is invoked by the task runner on the scale interval.
func (a *Autoscaler) Tick(ctx context.Context) {
	utilization := a.pool.Utilization()
	pattern := models.ClassifyWorkload(utilization)

	a.mu.Lock()
	delta := utilization - a.lastUtilization
	a.lastUtilization = utilization
	a.mu.Unlock()

	if delta >= burstDelta {
		pattern = models.WorkloadBurst
	}
	a.pool.setWorkload(pattern)

	// Emergency requests bypass cooldown: acquisitions are already failing.
	if pending := a.pool.consumeEmergencyRequests(); pending > 0 {
		logger.WithComponent("autoscaler").Warnf(
			"Emergency scale-up: %d pending requests, utilization %.2f", pending, utilization,
		)
		a.scaleUp("emergency_acquire_failures", true)
		return
	}

	switch {
	case a.shouldScaleUp(utilization, pattern):
		a.resetSustainedLow()
		reason := "high_utilization"
		if pattern == models.WorkloadBurst {
			reason = "burst_detected"
		}
		a.scaleUp(reason, false)

	case a.shouldScaleDown(utilization):
		if a.bumpSustainedLow() >= sustainedLowTicks {
			a.scaleDown(utilization)
		}

	default:
		a.resetSustainedLow()
	}
}

func (a *Autoscaler) shouldScaleUp(utilization float64, pattern models.WorkloadPattern) bool {
	if utilization >= a.cfg.ScaleUpThreshold {
		return true
	}
	return pattern == models.WorkloadBurst
}

func (a *Autoscaler) shouldScaleDown(utilization float64) bool {
	size, _ := a.pool.Size()
	return utilization <= a.cfg.ScaleDownThreshold && size > a.cfg.BasePoolSize
}

func (a *Autoscaler) scaleUp(reason string, emergency bool) {
	if !emergency && a.inCooldown() {
		logger.WithComponent("autoscaler").Debugf("Scale-up suppressed by cooldown (reason: %s)", reason)
		return
	}

	size, overflow := a.pool.Size()
	targetSize := size + scaleStep(a.cfg.MaxPoolSize)
	targetOverflow := overflow
	if targetSize >= a.cfg.MaxPoolSize && overflow < a.cfg.MaxOverflow {
		targetOverflow = a.cfg.MaxOverflow
	}

	if err := a.pool.Scale(targetSize, targetOverflow, reason); err != nil {
		if !errors.Is(err, ErrScaleInFlight) {
			logger.WithComponent("autoscaler").Errorf("Scale-up failed: %v", err)
		}
		return
	}
	a.markScaled()
}

func (a *Autoscaler) scaleDown(utilization float64) {
	if a.inCooldown() {
		return
	}

	size, overflow := a.pool.Size()
	targetSize := size - scaleStep(a.cfg.MaxPoolSize)
	targetOverflow := overflow
	if targetSize <= a.cfg.BasePoolSize {
		targetOverflow = a.cfg.BaseOverflow
	}

	logger.WithComponent("autoscaler").Infof(
		"Scaling down: utilization %.2f sustained below %.2f", utilization, a.cfg.ScaleDownThreshold,
	)
	if err := a.pool.Scale(targetSize, targetOverflow, "low_utilization"); err != nil {
		if !errors.Is(err, ErrScaleInFlight) {
			logger.WithComponent("autoscaler").Errorf("Scale-down failed: %v", err)
		}
		return
	}
	a.markScaled()
	a.resetSustainedLow()
}

// scaleStep sizes one resize increment at 25% of max, at least 2 connections.
func scaleStep(max int) int {
	step := max / 4
	if step < 2 {
		step = 2
	}
	return step
}

func (a *Autoscaler) inCooldown() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.lastScaleTime.IsZero() && time.Since(a.lastScaleTime) < a.cfg.ScaleCooldown
}

func (a *Autoscaler) markScaled() {
	a.mu.Lock()
	a.lastScaleTime = time.Now()
	a.mu.Unlock()
}

func (a *Autoscaler) bumpSustainedLow() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sustainedLow++
	return a.sustainedLow
}

func (a *Autoscaler) resetSustainedLow() {
	a.mu.Lock()
	a.sustainedLow = 0
	a.mu.Unlock()
}
