// Package health observes SSL/transport connection attempts, classifies
// aggregate health over a trailing window and drives automated remediation,
// predictive degradation detection and certificate expiry checks.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// Monitor keeps the bounded attempt history and computes the current health
// status. Classification is a pure function of the window contents, so two
// calls over the same attempts always agree.
type Monitor struct {
	cfg       config.HealthConfig
	publisher *events.Publisher

	mu       sync.RWMutex
	attempts []models.SSLPerformanceMetric
	head     int
	count    int
	status   models.HealthStatus

	remediator *Remediator
	predictor  *Predictor
	certs      *CertificateChecker
}

func NewMonitor(cfg config.HealthConfig, publisher *events.Publisher, dbAddr string) *Monitor {
	limit := cfg.AttemptHistoryLimit
	if limit <= 0 {
		limit = 10000
	}
	m := &Monitor{
		cfg:       cfg,
		publisher: publisher,
		attempts:  make([]models.SSLPerformanceMetric, limit),
		status:    models.HealthExcellent,
	}
	m.remediator = NewRemediator(cfg, publisher)
	m.predictor = NewPredictor(cfg, m, m.remediator)
	m.certs = NewCertificateChecker(cfg, publisher, dbAddr)
	m.remediator.certRecheck = m.certs.Check
	return m
}

// BindPool wires the pool operations remediation acts on. Called once during
// startup wiring, after the pool is constructed with this monitor as its
// attempt recorder.
func (m *Monitor) BindPool(actions PoolActions) {
	m.remediator.BindActions(actions)
}

func (m *Monitor) Remediator() *Remediator           { return m.remediator }
func (m *Monitor) Predictor() *Predictor             { return m.predictor }
func (m *Monitor) Certificates() *CertificateChecker { return m.certs }

// RecordAttempt stores one connection attempt outcome. Implements the pool's
// attempt recorder.
func (m *Monitor) RecordAttempt(contextID string, success bool, handshake time.Duration, errType models.SSLErrorType) {
	metric := models.SSLPerformanceMetric{
		Timestamp:         time.Now(),
		ContextID:         contextID,
		HandshakeDuration: handshake,
		Success:           success,
		ErrorType:         errType,
	}

	m.mu.Lock()
	m.attempts[m.head] = metric
	m.head = (m.head + 1) % len(m.attempts)
	if m.count < len(m.attempts) {
		m.count++
	}
	m.mu.Unlock()
}

// windowStats folds the attempts inside [since, now] into counters.
type windowStats struct {
	attempts     int64
	failures     int64
	handshakeSum time.Duration
	byType       map[models.SSLErrorType]int64
	windowStart  time.Time
}

func (w windowStats) errorRate() float64 {
	if w.attempts == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.attempts)
}

func (w windowStats) avgHandshake() time.Duration {
	if w.attempts == 0 {
		return 0
	}
	return w.handshakeSum / time.Duration(w.attempts)
}

func (m *Monitor) statsSince(since time.Time) windowStats {
	stats := windowStats{
		byType:      make(map[models.SSLErrorType]int64),
		windowStart: since,
	}

	m.mu.RLock()
	for i := 0; i < m.count; i++ {
		idx := (m.head - 1 - i + len(m.attempts)) % len(m.attempts)
		attempt := m.attempts[idx]
		if attempt.Timestamp.Before(since) {
			break // ring is time-ordered, older entries follow
		}
		stats.attempts++
		stats.handshakeSum += attempt.HandshakeDuration
		if !attempt.Success {
			stats.failures++
			stats.byType[attempt.ErrorType]++
		}
	}
	m.mu.RUnlock()

	return stats
}

// statsBetween folds attempts inside [from, to). Used by the predictor to
// compare adjacent windows.
func (m *Monitor) statsBetween(from, to time.Time) windowStats {
	stats := windowStats{
		byType:      make(map[models.SSLErrorType]int64),
		windowStart: from,
	}

	m.mu.RLock()
	for i := 0; i < m.count; i++ {
		idx := (m.head - 1 - i + len(m.attempts)) % len(m.attempts)
		attempt := m.attempts[idx]
		if attempt.Timestamp.Before(from) {
			break
		}
		if !attempt.Timestamp.Before(to) {
			continue
		}
		stats.attempts++
		stats.handshakeSum += attempt.HandshakeDuration
		if !attempt.Success {
			stats.failures++
			stats.byType[attempt.ErrorType]++
		}
	}
	m.mu.RUnlock()

	return stats
}

// classify maps window stats to a status. Thresholds are checked worst-first
// so the most severe matching tier wins.
func (m *Monitor) classify(stats windowStats) models.HealthStatus {
	rate := stats.errorRate()
	handshake := stats.avgHandshake()
	switch {
	case rate >= m.cfg.ErrorRateCritical:
		return models.HealthCritical
	case rate >= m.cfg.ErrorRateDegraded,
		m.cfg.HandshakeCritical > 0 && handshake > m.cfg.HandshakeCritical:
		return models.HealthDegraded
	case rate >= m.cfg.ErrorRateWarning || handshake > m.cfg.HandshakeWarning:
		return models.HealthWarning
	case stats.failures == 0:
		return models.HealthExcellent
	default:
		return models.HealthGood
	}
}

// Tick reclassifies health and, on a downgrade, asks the remediator to act.
// Runs on the health check interval.
func (m *Monitor) Tick(ctx context.Context) {
	stats := m.statsSince(time.Now().Add(-m.cfg.Window))
	newStatus := m.classify(stats)

	m.mu.Lock()
	oldStatus := m.status
	m.status = newStatus
	m.mu.Unlock()

	if newStatus != oldStatus {
		logger.WithComponent("health").Infof(
			"Health status %s -> %s (error rate %.3f over %d attempts)",
			oldStatus, newStatus, stats.errorRate(), stats.attempts,
		)
		if m.publisher != nil {
			m.publisher.HealthChanged(oldStatus, newStatus)
		}
	}

	// Remediate on any non-healthy state, not only on transitions, so a
	// persistently degraded endpoint keeps getting attention between
	// cooldowns.
	if newStatus.Rank() >= models.HealthWarning.Rank() {
		m.remediator.Remediate(ctx, stats, newStatus, m.certs.Current())
	}
}

func (m *Monitor) Status() models.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Report assembles the operator-facing health view.
func (m *Monitor) Report() models.SSLHealthReport {
	stats := m.statsSince(time.Now().Add(-m.cfg.Window))

	report := models.SSLHealthReport{
		GeneratedAt:  time.Now(),
		Status:       m.Status(),
		WindowStart:  stats.windowStart,
		Attempts:     stats.attempts,
		Failures:     stats.failures,
		ErrorRate:    stats.errorRate(),
		AvgHandshake: stats.avgHandshake(),
		ErrorsByType: stats.byType,
		Certificate:  m.certs.Current(),
	}

	if action, at, ok := m.remediator.Last(); ok {
		report.LastRemediation = action
		report.LastRemediationAt = &at
	}
	if alert := m.predictor.Current(); alert != nil {
		report.PredictiveAlert = alert
	}
	return report
}
