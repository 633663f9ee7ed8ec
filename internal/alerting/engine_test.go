package alerting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivesql/pooltuner/internal/alerting"
	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

func testAlertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		EvaluationTick:  30 * time.Second,
		ResolveTick:     time.Minute,
		DefaultCooldown: time.Hour,
		HistorySize:     10,
	}
}

// fakeExecutor records remediation attempts and fails the actions it is told
// to fail.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []models.RemediationAction
	failing map[models.RemediationAction]bool
}

func (f *fakeExecutor) Execute(_ context.Context, action models.RemediationAction, alertID string) *models.RemediationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	return &models.RemediationResult{
		ID:      models.NewUUID(),
		AlertID: alertID,
		Action:  action,
		Success: !f.failing[action],
		At:      time.Now(),
	}
}

func (f *fakeExecutor) actions() []models.RemediationAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RemediationAction(nil), f.calls...)
}

type engineFixture struct {
	engine   *alerting.Engine
	executor *fakeExecutor
	vars     map[string]float64
	fired    <-chan *models.Event
	resolved <-chan *models.Event
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	bus := events.NewEventBus(16)
	t.Cleanup(bus.Close)

	f := &engineFixture{
		executor: &fakeExecutor{failing: make(map[models.RemediationAction]bool)},
		vars:     map[string]float64{"pool.utilization": 0.5},
		fired:    bus.Subscribe(models.EventTypeAlertFired),
		resolved: bus.Subscribe(models.EventTypeAlertResolved),
	}
	f.engine = alerting.NewEngine(
		testAlertingConfig(),
		events.NewPublisher(bus, "alerting"),
		func() map[string]float64 { return f.vars },
		f.executor,
	)
	return f
}

func (f *engineFixture) tick() {
	f.engine.EvaluateTick(context.Background())
}

func (f *engineFixture) firedCount() int { return len(f.fired) }

func TestEngine_AddRuleAppliesDefaults(t *testing.T) {
	f := newEngineFixture(t)

	err := f.engine.AddRule(models.AlertRule{
		Name:      "high_utilization",
		Condition: "pool.utilization >= 0.9",
		Enabled:   true,
	})
	require.NoError(t, err)

	rules := f.engine.Rules()
	require.Len(t, rules, 1)
	assert.NotEmpty(t, rules[0].ID)
	assert.Equal(t, 1, rules[0].ConsecutiveViolations)
	assert.Equal(t, time.Hour, rules[0].Cooldown)
}

func TestEngine_AddRuleRejectsMalformedCondition(t *testing.T) {
	f := newEngineFixture(t)
	err := f.engine.AddRule(models.AlertRule{Name: "bad", Condition: "pool.utilization >="})
	assert.Error(t, err)
}

func TestEngine_AddRuleRejectsDuplicateName(t *testing.T) {
	f := newEngineFixture(t)

	rule := models.AlertRule{Name: "dup", Condition: "pool.utilization > 0.5"}
	require.NoError(t, f.engine.AddRule(rule))

	err := f.engine.AddRule(models.AlertRule{Name: "dup", Condition: "pool.utilization > 0.8"})
	assert.Error(t, err)
}

func TestEngine_FiresAfterConsecutiveViolations(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:                  "high_utilization",
		Severity:              models.AlertCritical,
		Condition:             "pool.utilization >= 0.9",
		ConsecutiveViolations: 2,
		Enabled:               true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()
	assert.Zero(t, f.firedCount(), "one violation must not fire")

	f.tick()
	require.Equal(t, 1, f.firedCount())

	event := <-f.fired
	assert.Equal(t, models.SeverityCritical, event.Severity)

	status := f.engine.Status()
	require.Len(t, status.OpenAlerts, 1)
	assert.Equal(t, "high_utilization", status.OpenAlerts[0].RuleName)
	assert.Equal(t, 0.95, status.OpenAlerts[0].CurrentValue)
	assert.Equal(t, models.AlertOpen, status.OpenAlerts[0].Resolution)
}

func TestEngine_OpenAlertIsNotRefired(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:      "high_utilization",
		Condition: "pool.utilization >= 0.9",
		Enabled:   true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()
	f.tick()
	f.tick()

	assert.Equal(t, 1, f.firedCount())
	assert.Len(t, f.engine.Status().OpenAlerts, 1)
}

func TestEngine_ViolationStreakResetsOnPass(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:                  "high_utilization",
		Condition:             "pool.utilization >= 0.9",
		ConsecutiveViolations: 2,
		Enabled:               true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()
	f.vars["pool.utilization"] = 0.5
	f.tick()
	f.vars["pool.utilization"] = 0.95
	f.tick()

	assert.Zero(t, f.firedCount(), "streak broken by a passing evaluation")
}

func TestEngine_WindowExpiryRestartsStreak(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:                  "high_utilization",
		Condition:             "pool.utilization >= 0.9",
		Window:                50 * time.Millisecond,
		ConsecutiveViolations: 2,
		Enabled:               true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()
	time.Sleep(70 * time.Millisecond)

	// The first violation has aged out of the window, so this starts a new
	// streak instead of completing the old one.
	f.tick()
	assert.Zero(t, f.firedCount())

	f.tick()
	assert.Equal(t, 1, f.firedCount())
}

func TestEngine_CooldownSuppressesRefireAfterResolve(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:      "high_utilization",
		Condition: "pool.utilization >= 0.9",
		Cooldown:  time.Hour,
		Enabled:   true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()
	require.Equal(t, 1, f.firedCount())

	status := f.engine.Status()
	require.Len(t, status.OpenAlerts, 1)
	require.True(t, f.engine.Resolve(status.OpenAlerts[0].ID))

	f.tick()
	assert.Equal(t, 1, f.firedCount(), "cooldown must gate the refire")
	assert.Empty(t, f.engine.Status().OpenAlerts)
}

func TestEngine_AutoRemediationStopsAtFirstSuccess(t *testing.T) {
	f := newEngineFixture(t)
	f.executor.failing[models.RemediationRecycleIdle] = true

	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:          "high_utilization",
		Condition:     "pool.utilization >= 0.9",
		AutoRemediate: true,
		Actions: []models.RemediationAction{
			models.RemediationRecycleIdle,
			models.RemediationScaleUp,
			models.RemediationEmergencyScale,
		},
		Enabled: true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()

	assert.Equal(t, []models.RemediationAction{
		models.RemediationRecycleIdle,
		models.RemediationScaleUp,
	}, f.executor.actions())

	status := f.engine.Status()
	require.Len(t, status.RecentResults, 2)
	assert.False(t, status.RecentResults[0].Success)
	assert.True(t, status.RecentResults[1].Success)
	require.Len(t, status.OpenAlerts, 1)
	assert.True(t, status.OpenAlerts[0].RemediationAttempted)
}

func TestEngine_ResolveTickClosesRecoveredAlerts(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:      "high_utilization",
		Condition: "pool.utilization >= 0.9",
		Enabled:   true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()
	require.Len(t, f.engine.Status().OpenAlerts, 1)

	// Still violating: the alert stays open.
	f.engine.ResolveTick(context.Background())
	require.Len(t, f.engine.Status().OpenAlerts, 1)

	f.vars["pool.utilization"] = 0.4
	f.engine.ResolveTick(context.Background())

	status := f.engine.Status()
	assert.Empty(t, status.OpenAlerts)
	require.Equal(t, 1, len(f.resolved))

	var resolved *models.Alert
	for i := range status.RecentAlerts {
		if status.RecentAlerts[i].Resolution == models.AlertResolved {
			resolved = &status.RecentAlerts[i]
		}
	}
	require.NotNil(t, resolved)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestEngine_Acknowledge(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:      "high_utilization",
		Condition: "pool.utilization >= 0.9",
		Enabled:   true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()

	alertID := f.engine.Status().OpenAlerts[0].ID
	assert.True(t, f.engine.Acknowledge(alertID))
	assert.False(t, f.engine.Acknowledge(alertID), "already acknowledged")
	assert.False(t, f.engine.Acknowledge("no-such-alert"))

	status := f.engine.Status()
	require.Len(t, status.OpenAlerts, 1)
	assert.Equal(t, models.AlertAcknowledged, status.OpenAlerts[0].Resolution)
}

func TestEngine_ResolveUnknownAlert(t *testing.T) {
	f := newEngineFixture(t)
	assert.False(t, f.engine.Resolve("no-such-alert"))
}

func TestEngine_UnevaluableRuleNeverFires(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:      "missing_metric",
		Condition: "cert.days_until_expiry <= 30",
		Enabled:   true,
	}))

	f.tick()
	f.tick()

	status := f.engine.Status()
	assert.Empty(t, status.OpenAlerts)
	assert.Equal(t, int64(2), status.EvaluationErrors)
}

func TestEngine_DisabledRuleIsSkipped(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:      "high_utilization",
		Condition: "pool.utilization >= 0.9",
		Enabled:   false,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()
	assert.Zero(t, f.firedCount())
}

func TestEngine_RemoveRuleResolvesOpenAlert(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.AddRule(models.AlertRule{
		Name:      "high_utilization",
		Condition: "pool.utilization >= 0.9",
		Enabled:   true,
	}))

	f.vars["pool.utilization"] = 0.95
	f.tick()

	ruleID := f.engine.Rules()[0].ID
	assert.True(t, f.engine.RemoveRule(ruleID))
	assert.False(t, f.engine.RemoveRule(ruleID))

	status := f.engine.Status()
	assert.Empty(t, status.OpenAlerts)
	assert.Zero(t, status.RuleCount)
	assert.Equal(t, 1, len(f.resolved))
}

func TestEngine_StatusReflectsRunningFlag(t *testing.T) {
	f := newEngineFixture(t)
	assert.False(t, f.engine.Status().Running)

	f.engine.SetRunning(true)
	f.tick()

	status := f.engine.Status()
	assert.True(t, status.Running)
	require.NotNil(t, status.LastEvaluatedAt)
}
