package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		CheckTick:            time.Second,
		Window:               time.Minute,
		ErrorRateWarning:     0.05,
		ErrorRateDegraded:    0.10,
		ErrorRateCritical:    0.20,
		HandshakeWarning:     2 * time.Second,
		HandshakeCritical:    5 * time.Second,
		RemediationCooldown:  time.Hour,
		PredictiveWindow:     time.Minute,
		PredictiveConfidence: 0.8,
		CertWarningDays:      30,
		CertCriticalDays:     7,
		AttemptHistoryLimit:  500,
		RecentFailureRefresh: 3,
	}
}

// fakePoolActions records remediation calls against the pool.
type fakePoolActions struct {
	mu           sync.Mutex
	scaleCalls   [][2]int
	refreshCalls []string
	dropCalls    int
	size         int
	overflow     int
}

func (f *fakePoolActions) Scale(targetSize, targetOverflow int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scaleCalls = append(f.scaleCalls, [2]int{targetSize, targetOverflow})
	return nil
}

func (f *fakePoolActions) RefreshEngine(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls = append(f.refreshCalls, reason)
	return nil
}

func (f *fakePoolActions) DropWarmCache() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropCalls++
	return 0
}

func (f *fakePoolActions) Size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size, f.overflow
}

// seedAttempt inserts an attempt with a backdated timestamp. Attempts must be
// seeded oldest first to preserve the ring's time ordering.
func seedAttempt(m *Monitor, age time.Duration, success bool, handshake time.Duration, errType models.SSLErrorType) {
	m.mu.Lock()
	m.attempts[m.head] = models.SSLPerformanceMetric{
		Timestamp:         time.Now().Add(-age),
		ContextID:         "test",
		HandshakeDuration: handshake,
		Success:           success,
		ErrorType:         errType,
	}
	m.head = (m.head + 1) % len(m.attempts)
	if m.count < len(m.attempts) {
		m.count++
	}
	m.mu.Unlock()
}

func TestMonitor_Classify(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")

	tests := []struct {
		name     string
		stats    windowStats
		expected models.HealthStatus
	}{
		{
			name:     "critical error rate",
			stats:    windowStats{attempts: 100, failures: 25},
			expected: models.HealthCritical,
		},
		{
			name:     "degraded error rate",
			stats:    windowStats{attempts: 100, failures: 12},
			expected: models.HealthDegraded,
		},
		{
			name:     "warning error rate",
			stats:    windowStats{attempts: 100, failures: 6},
			expected: models.HealthWarning,
		},
		{
			name:     "slow handshakes alone trigger warning",
			stats:    windowStats{attempts: 10, handshakeSum: 30 * time.Second},
			expected: models.HealthWarning,
		},
		{
			name:     "critically slow handshakes degrade without errors",
			stats:    windowStats{attempts: 10, handshakeSum: 60 * time.Second},
			expected: models.HealthDegraded,
		},
		{
			name:     "no failures is excellent",
			stats:    windowStats{attempts: 50, handshakeSum: time.Second},
			expected: models.HealthExcellent,
		},
		{
			name:     "few failures is good",
			stats:    windowStats{attempts: 100, failures: 1},
			expected: models.HealthGood,
		},
		{
			name:     "empty window is excellent",
			stats:    windowStats{},
			expected: models.HealthExcellent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.classify(tt.stats))
		})
	}
}

func TestMonitor_WindowStatsFolding(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")

	// Outside the window, must be ignored.
	seedAttempt(m, 2*time.Minute, false, 50*time.Millisecond, models.SSLErrorReset)
	// Inside the window.
	seedAttempt(m, 30*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	seedAttempt(m, 20*time.Second, false, 100*time.Millisecond, models.SSLErrorTimeout)
	seedAttempt(m, 10*time.Second, true, 30*time.Millisecond, models.SSLErrorNone)

	stats := m.statsSince(time.Now().Add(-time.Minute))
	assert.Equal(t, int64(3), stats.attempts)
	assert.Equal(t, int64(1), stats.failures)
	assert.Equal(t, int64(1), stats.byType[models.SSLErrorTimeout])
	assert.InDelta(t, 1.0/3.0, stats.errorRate(), 0.001)
	assert.Equal(t, 50*time.Millisecond, stats.avgHandshake())
}

func TestMonitor_StatsBetween(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")

	seedAttempt(m, 90*time.Second, false, 50*time.Millisecond, models.SSLErrorReset)
	seedAttempt(m, 30*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)

	now := time.Now()
	prior := m.statsBetween(now.Add(-2*time.Minute), now.Add(-time.Minute))
	recent := m.statsBetween(now.Add(-time.Minute), now)

	assert.Equal(t, int64(1), prior.attempts)
	assert.Equal(t, int64(1), prior.failures)
	assert.Equal(t, int64(1), recent.attempts)
	assert.Equal(t, int64(0), recent.failures)
}

func TestMonitor_RecordAttemptRingWraps(t *testing.T) {
	cfg := testHealthConfig()
	cfg.AttemptHistoryLimit = 4
	m := NewMonitor(cfg, nil, "localhost:5432")

	for i := 0; i < 10; i++ {
		m.RecordAttempt("web", true, time.Millisecond, models.SSLErrorNone)
	}

	stats := m.statsSince(time.Now().Add(-time.Minute))
	assert.Equal(t, int64(4), stats.attempts)
}

func TestRemediator_SelectAction(t *testing.T) {
	r := NewRemediator(testHealthConfig(), nil)
	expired := &models.CertificateInfo{Valid: false}

	tests := []struct {
		name     string
		stats    windowStats
		status   models.HealthStatus
		cert     *models.CertificateInfo
		expected models.RemediationAction
	}{
		{
			name: "certificate errors dominate everything",
			stats: windowStats{
				attempts: 10, failures: 9,
				byType: map[models.SSLErrorType]int64{models.SSLErrorCertificate: 1},
			},
			status:   models.HealthCritical,
			expected: models.RemediationCertValidation,
		},
		{
			name:     "invalid certificate without cert errors",
			stats:    windowStats{attempts: 100, failures: 1},
			status:   models.HealthWarning,
			cert:     expired,
			expected: models.RemediationCertValidation,
		},
		{
			name:     "critical rate scales out",
			stats:    windowStats{attempts: 10, failures: 3, byType: map[models.SSLErrorType]int64{}},
			status:   models.HealthCritical,
			expected: models.RemediationEmergencyScale,
		},
		{
			name: "timeout-dominated failures force reconnect",
			stats: windowStats{
				attempts: 100, failures: 4,
				byType: map[models.SSLErrorType]int64{models.SSLErrorTimeout: 3},
			},
			status:   models.HealthWarning,
			expected: models.RemediationForceReconnect,
		},
		{
			name:     "degraded rate forces reconnect",
			stats:    windowStats{attempts: 100, failures: 15, byType: map[models.SSLErrorType]int64{}},
			status:   models.HealthDegraded,
			expected: models.RemediationForceReconnect,
		},
		{
			name: "repeated failures refresh the engine",
			stats: windowStats{
				attempts: 100, failures: 3,
				byType: map[models.SSLErrorType]int64{models.SSLErrorReset: 3},
			},
			status:   models.HealthWarning,
			expected: models.RemediationEngineRefresh,
		},
		{
			name:     "single failure at warning retries",
			stats:    windowStats{attempts: 100, failures: 1, byType: map[models.SSLErrorType]int64{}},
			status:   models.HealthWarning,
			expected: models.RemediationRetry,
		},
		{
			name:     "healthy selects nothing",
			stats:    windowStats{attempts: 100, byType: map[models.SSLErrorType]int64{}},
			status:   models.HealthGood,
			expected: models.RemediationNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.selectAction(tt.stats, tt.status, tt.cert))
		})
	}
}

func TestRemediator_ExecuteEmergencyScaleDoubles(t *testing.T) {
	actions := &fakePoolActions{size: 4, overflow: 2}
	r := NewRemediator(testHealthConfig(), nil)
	r.BindActions(actions)

	result := r.Execute(context.Background(), models.RemediationEmergencyScale, "")
	require.NotNil(t, result)
	assert.True(t, result.Success)
	require.Len(t, actions.scaleCalls, 1)
	assert.Equal(t, [2]int{8, 4}, actions.scaleCalls[0])

	action, at, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, models.RemediationEmergencyScale, action)
	assert.False(t, at.IsZero())
}

func TestRemediator_ForceReconnectDropsWarmCache(t *testing.T) {
	actions := &fakePoolActions{size: 4, overflow: 2}
	r := NewRemediator(testHealthConfig(), nil)
	r.BindActions(actions)

	result := r.Execute(context.Background(), models.RemediationForceReconnect, "")
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, actions.dropCalls)
	assert.Equal(t, []string{"force_reconnect"}, actions.refreshCalls)
}

func TestRemediator_CooldownSuppressesRepeat(t *testing.T) {
	actions := &fakePoolActions{size: 4, overflow: 2}
	r := NewRemediator(testHealthConfig(), nil)
	r.BindActions(actions)

	require.NotNil(t, r.Execute(context.Background(), models.RemediationEngineRefresh, ""))
	assert.Nil(t, r.Execute(context.Background(), models.RemediationEngineRefresh, ""))
	assert.Len(t, actions.refreshCalls, 1)

	// A different action is not blocked by the first one's cooldown.
	assert.NotNil(t, r.Execute(context.Background(), models.RemediationEmergencyScale, ""))
}

func TestRemediator_UnboundActionsFail(t *testing.T) {
	r := NewRemediator(testHealthConfig(), nil)

	result := r.Execute(context.Background(), models.RemediationEngineRefresh, "")
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not bound")
}

func TestRemediator_HistoryIsCapped(t *testing.T) {
	cfg := testHealthConfig()
	cfg.RemediationCooldown = 0
	actions := &fakePoolActions{size: 2, overflow: 1}
	r := NewRemediator(cfg, nil)
	r.BindActions(actions)

	for i := 0; i < remediationHistoryLimit+20; i++ {
		r.Execute(context.Background(), models.RemediationEngineRefresh, "")
	}
	assert.Len(t, r.History(), remediationHistoryLimit)
}

func TestMonitor_TickRemediatesOnCritical(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")
	actions := &fakePoolActions{size: 4, overflow: 2}
	m.BindPool(actions)

	for i := 0; i < 5; i++ {
		m.RecordAttempt("web", true, 10*time.Millisecond, models.SSLErrorNone)
	}
	for i := 0; i < 5; i++ {
		m.RecordAttempt("web", false, 10*time.Millisecond, models.SSLErrorReset)
	}

	m.Tick(context.Background())

	assert.Equal(t, models.HealthCritical, m.Status())
	require.Len(t, actions.scaleCalls, 1)
	assert.Equal(t, [2]int{8, 4}, actions.scaleCalls[0])
}

func TestMonitor_TickStaysQuietWhenHealthy(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")
	actions := &fakePoolActions{size: 4, overflow: 2}
	m.BindPool(actions)

	for i := 0; i < 20; i++ {
		m.RecordAttempt("web", true, 10*time.Millisecond, models.SSLErrorNone)
	}

	m.Tick(context.Background())

	assert.Equal(t, models.HealthExcellent, m.Status())
	assert.Empty(t, actions.scaleCalls)
	assert.Empty(t, actions.refreshCalls)
}

func TestMonitor_Report(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")

	m.RecordAttempt("web", true, 20*time.Millisecond, models.SSLErrorNone)
	m.RecordAttempt("web", false, 40*time.Millisecond, models.SSLErrorHandshake)

	report := m.Report()
	assert.Equal(t, int64(2), report.Attempts)
	assert.Equal(t, int64(1), report.Failures)
	assert.InDelta(t, 0.5, report.ErrorRate, 0.001)
	assert.Equal(t, 30*time.Millisecond, report.AvgHandshake)
	assert.Equal(t, int64(1), report.ErrorsByType[models.SSLErrorHandshake])
}

func TestPredictor_RaisesAlertOnWorsening(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")
	p := m.Predictor()

	// Prior window: clean. Recent window: 20% error rate.
	for i := 0; i < 20; i++ {
		seedAttempt(m, 90*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	}
	for i := 0; i < 16; i++ {
		seedAttempt(m, 30*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	}
	for i := 0; i < 4; i++ {
		seedAttempt(m, 20*time.Second, false, 20*time.Millisecond, models.SSLErrorReset)
	}

	p.Tick(context.Background())

	alert := p.Current()
	require.NotNil(t, alert)
	assert.InDelta(t, 0.2, alert.ErrorRateDelta, 0.01)
	// 20 samples per window is far below the proactive confidence bar.
	assert.False(t, alert.ProactiveApplied)
}

func TestPredictor_ProactiveRefreshAtHighConfidence(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")
	actions := &fakePoolActions{size: 4, overflow: 2}
	m.BindPool(actions)
	p := m.Predictor()

	for i := 0; i < 100; i++ {
		seedAttempt(m, 90*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	}
	for i := 0; i < 80; i++ {
		seedAttempt(m, 30*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	}
	for i := 0; i < 20; i++ {
		seedAttempt(m, 20*time.Second, false, 20*time.Millisecond, models.SSLErrorReset)
	}

	p.Tick(context.Background())

	alert := p.Current()
	require.NotNil(t, alert)
	assert.True(t, alert.ProactiveApplied)
	assert.Equal(t, []string{"health_remediation"}, actions.refreshCalls)
}

func TestPredictor_QuietWhenStable(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")
	p := m.Predictor()

	for i := 0; i < 20; i++ {
		seedAttempt(m, 90*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	}
	for i := 0; i < 20; i++ {
		seedAttempt(m, 30*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	}

	p.Tick(context.Background())
	assert.Nil(t, p.Current())
}

func TestPredictor_NeedsEnoughSamples(t *testing.T) {
	m := NewMonitor(testHealthConfig(), nil, "localhost:5432")
	p := m.Predictor()

	for i := 0; i < 5; i++ {
		seedAttempt(m, 90*time.Second, true, 20*time.Millisecond, models.SSLErrorNone)
	}
	for i := 0; i < 5; i++ {
		seedAttempt(m, 30*time.Second, false, 20*time.Millisecond, models.SSLErrorReset)
	}

	p.Tick(context.Background())
	assert.Nil(t, p.Current())
}
