package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// PoolActions is the slice of the pool the remediator may drive. Scale targets
// are clamped by the pool itself, so oversized requests are safe.
type PoolActions interface {
	Scale(targetSize, targetOverflow int, reason string) error
	RefreshEngine(reason string) error
	DropWarmCache() int
	Size() (size, overflow int)
}

// Remediator selects and executes one corrective action per invocation,
// highest-severity match first. Each action carries its own cooldown so a
// noisy window cannot trigger the same remediation in a loop.
type Remediator struct {
	cfg       config.HealthConfig
	publisher *events.Publisher

	actionsMu sync.RWMutex
	actions   PoolActions

	certRecheck func(ctx context.Context)

	mu         sync.Mutex
	lastRun    map[models.RemediationAction]time.Time
	lastAction models.RemediationAction
	lastAt     time.Time
	history    []models.RemediationResult
}

const remediationHistoryLimit = 100

func NewRemediator(cfg config.HealthConfig, publisher *events.Publisher) *Remediator {
	return &Remediator{
		cfg:       cfg,
		publisher: publisher,
		lastRun:   make(map[models.RemediationAction]time.Time),
	}
}

// BindActions wires the pool. Called once during startup, before any ticks
// run; the monitor records attempts only after the pool starts serving.
func (r *Remediator) BindActions(actions PoolActions) {
	r.actionsMu.Lock()
	r.actions = actions
	r.actionsMu.Unlock()
}

func (r *Remediator) poolActions() PoolActions {
	r.actionsMu.RLock()
	defer r.actionsMu.RUnlock()
	return r.actions
}

// Remediate picks the action matching the observed failure pattern and runs
// it. Called by the monitor tick when status is Warning or worse.
func (r *Remediator) Remediate(ctx context.Context, stats windowStats, status models.HealthStatus, cert *models.CertificateInfo) {
	action := r.selectAction(stats, status, cert)
	if action == models.RemediationNone {
		return
	}
	r.Execute(ctx, action, "")
}

// selectAction is the priority ladder: certificate problems first, then
// capacity-level failures, then transport-level ones.
func (r *Remediator) selectAction(stats windowStats, status models.HealthStatus, cert *models.CertificateInfo) models.RemediationAction {
	if stats.byType[models.SSLErrorCertificate] > 0 || (cert != nil && !cert.Valid) {
		return models.RemediationCertValidation
	}
	if stats.errorRate() >= r.cfg.ErrorRateCritical {
		return models.RemediationEmergencyScale
	}
	timeouts := stats.byType[models.SSLErrorTimeout]
	if stats.errorRate() >= r.cfg.ErrorRateDegraded || (stats.failures > 0 && timeouts*2 > stats.failures) {
		return models.RemediationForceReconnect
	}
	if int(stats.failures) >= r.cfg.RecentFailureRefresh {
		return models.RemediationEngineRefresh
	}
	if status.Rank() >= models.HealthWarning.Rank() {
		return models.RemediationRetry
	}
	return models.RemediationNone
}

// Execute runs one remediation action, honoring its cooldown, and returns the
// recorded result. alertID is set when the alerting engine is the caller.
func (r *Remediator) Execute(ctx context.Context, action models.RemediationAction, alertID string) *models.RemediationResult {
	r.mu.Lock()
	if last, ok := r.lastRun[action]; ok && time.Since(last) < r.cfg.RemediationCooldown {
		r.mu.Unlock()
		logger.WithComponent("health").Debugf("Remediation %s suppressed by cooldown", action)
		return nil
	}
	r.lastRun[action] = time.Now()
	r.mu.Unlock()

	start := time.Now()
	err := r.run(ctx, action)

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
		logger.WithComponent("health").Errorf("Remediation %s failed: %v", action, err)
	} else {
		logger.WithComponent("health").Infof("Remediation %s applied in %s", action, result.Duration)
	}

	r.mu.Lock()
	r.lastAction = action
	r.lastAt = start
	r.history = append(r.history, *result)
	if len(r.history) > remediationHistoryLimit {
		r.history = r.history[len(r.history)-remediationHistoryLimit:]
	}
	r.mu.Unlock()

	if r.publisher != nil {
		r.publisher.Remediation(result)
	}
	return result
}

func (r *Remediator) run(ctx context.Context, action models.RemediationAction) error {
	actions := r.poolActions()
	if actions == nil {
		return errors.New("remediation actions not bound")
	}

	switch action {
	case models.RemediationRetry:
		// Retry is handled inline by the acquisition path; here it only marks
		// that no structural action was needed yet.
		return nil

	case models.RemediationEngineRefresh:
		return actions.RefreshEngine("health_remediation")

	case models.RemediationForceReconnect:
		dropped := actions.DropWarmCache()
		logger.WithComponent("health").Infof("Force reconnect dropped %d warmed connections", dropped)
		return actions.RefreshEngine("force_reconnect")

	case models.RemediationEmergencyScale:
		size, overflow := actions.Size()
		// Doubling is clamped to the configured maximum by the pool.
		return actions.Scale(size*2, overflow*2, "emergency_health")

	case models.RemediationCertValidation:
		logger.WithComponent("health").Warn("Certificate validation requested, forcing recheck")
		if r.certRecheck != nil {
			r.certRecheck(ctx)
		}
		return nil

	default:
		return nil
	}
}

// Last returns the most recent remediation, if any.
func (r *Remediator) Last() (models.RemediationAction, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastAt.IsZero() {
		return models.RemediationNone, time.Time{}, false
	}
	return r.lastAction, r.lastAt, true
}

// History snapshots recent remediation results, newest last.
func (r *Remediator) History() []models.RemediationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RemediationResult, len(r.history))
	copy(out, r.history)
	return out
}
