package health

import (
	"context"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// Predictor compares the most recent observation window against the one
// preceding it and raises a predictive alert when transport quality worsened
// materially, before the reactive classifier crosses a threshold. With enough
// confidence it also applies a proactive engine refresh.
type Predictor struct {
	cfg        config.HealthConfig
	monitor    *Monitor
	remediator *Remediator

	mu      sync.Mutex
	current *models.PredictiveAlert
}

// Relative worsening required before an alert is considered, plus absolute
// floors so near-zero baselines do not trip on noise.
const (
	relativeWorseningLimit = 0.5
	errorRateFloor         = 0.02
	handshakeFloorMs       = 100.0
	minWindowAttempts      = 10
)

func NewPredictor(cfg config.HealthConfig, monitor *Monitor, remediator *Remediator) *Predictor {
	return &Predictor{cfg: cfg, monitor: monitor, remediator: remediator}
}

// Tick runs on the predictive interval.
func (p *Predictor) Tick(ctx context.Context) {
	now := time.Now()
	recent := p.monitor.statsBetween(now.Add(-p.cfg.PredictiveWindow), now)
	prior := p.monitor.statsBetween(now.Add(-2*p.cfg.PredictiveWindow), now.Add(-p.cfg.PredictiveWindow))

	if recent.attempts < minWindowAttempts || prior.attempts < minWindowAttempts {
		return
	}

	errDelta := recent.errorRate() - prior.errorRate()
	handshakeDeltaMs := float64((recent.avgHandshake() - prior.avgHandshake()).Milliseconds())

	worse := false
	if prior.errorRate() > 0 {
		worse = errDelta/prior.errorRate() > relativeWorseningLimit && errDelta >= errorRateFloor
	} else {
		worse = recent.errorRate() >= errorRateFloor
	}
	if !worse && prior.avgHandshake() > 0 {
		relHandshake := handshakeDeltaMs / float64(prior.avgHandshake().Milliseconds()+1)
		worse = relHandshake > relativeWorseningLimit && handshakeDeltaMs >= handshakeFloorMs
	}

	if !worse {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		return
	}

	confidence := p.confidence(recent.attempts, prior.attempts)
	alert := &models.PredictiveAlert{
		RaisedAt:       now,
		Confidence:     confidence,
		ErrorRateDelta: errDelta,
		HandshakeDelta: handshakeDeltaMs,
	}

	logger.WithComponent("health").Warnf(
		"Predictive degradation: error rate %+.3f, handshake %+.0fms, confidence %.2f",
		errDelta, handshakeDeltaMs, confidence,
	)

	if confidence > p.cfg.PredictiveConfidence {
		if result := p.remediator.Execute(ctx, models.RemediationEngineRefresh, ""); result != nil {
			alert.ProactiveApplied = result.Success
		}
	}

	p.mu.Lock()
	p.current = alert
	p.mu.Unlock()
}

// confidence grows with sample volume in both windows, saturating at 100
// attempts each.
func (p *Predictor) confidence(recentN, priorN int64) float64 {
	smaller := recentN
	if priorN < smaller {
		smaller = priorN
	}
	confidence := float64(smaller) / 100.0
	if confidence > 0.99 {
		confidence = 0.99
	}
	return confidence
}

// Current returns the outstanding predictive alert, or nil.
func (p *Predictor) Current() *models.PredictiveAlert {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	snapshot := *p.current
	return &snapshot
}
