package alerting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// VariableFunc assembles the metric map conditions are evaluated against.
type VariableFunc func() map[string]float64

// Engine holds the rule registry and evaluates every enabled rule on each
// tick. A rule fires only after its configured number of consecutive
// violations inside its window, and not again until its cooldown elapses.
type Engine struct {
	cfg       config.AlertingConfig
	publisher *events.Publisher
	variables VariableFunc
	executor  Executor

	mu      sync.Mutex
	rules   map[string]*compiledRule
	open    map[string]*models.Alert // rule ID -> open alert
	recent  []models.Alert
	results []models.RemediationResult

	running    atomic.Bool
	evalErrors atomic.Int64
	lastEval   atomic.Value // time.Time
}

type compiledRule struct {
	rule        models.AlertRule
	cond        *Condition
	violations  int
	windowStart time.Time
	lastFired   time.Time
}

func NewEngine(cfg config.AlertingConfig, publisher *events.Publisher, variables VariableFunc, executor Executor) *Engine {
	return &Engine{
		cfg:       cfg,
		publisher: publisher,
		variables: variables,
		executor:  executor,
		rules:     make(map[string]*compiledRule),
		open:      make(map[string]*models.Alert),
	}
}

// AddRule compiles and registers a rule. The condition is parsed here so a
// malformed rule is rejected before it ever reaches evaluation.
func (e *Engine) AddRule(rule models.AlertRule) error {
	cond, err := ParseCondition(rule.Condition)
	if err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = models.NewUUID()
	}
	if rule.ConsecutiveViolations <= 0 {
		rule.ConsecutiveViolations = 1
	}
	if rule.Cooldown <= 0 {
		rule.Cooldown = e.cfg.DefaultCooldown
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.rule.Name == rule.Name && existing.rule.ID != rule.ID {
			return fmt.Errorf("rule %q already exists", rule.Name)
		}
	}
	e.rules[rule.ID] = &compiledRule{rule: rule, cond: cond}
	logger.WithComponent("alerting").Infof("Alert rule registered: %s (%s)", rule.Name, rule.Condition)
	return nil
}

// RemoveRule deletes a rule and resolves its open alert, if any.
func (e *Engine) RemoveRule(ruleID string) bool {
	e.mu.Lock()
	_, ok := e.rules[ruleID]
	delete(e.rules, ruleID)
	alert := e.open[ruleID]
	delete(e.open, ruleID)
	e.mu.Unlock()

	if alert != nil {
		e.resolveAlert(alert)
	}
	return ok
}

func (e *Engine) Rules() []models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.AlertRule, 0, len(e.rules))
	for _, cr := range e.rules {
		out = append(out, cr.rule)
	}
	return out
}

func (e *Engine) SetRunning(running bool) {
	e.running.Store(running)
}

// EvaluateTick runs every rule against the current metric map.
func (e *Engine) EvaluateTick(ctx context.Context) {
	vars := e.variables()
	now := time.Now()
	e.lastEval.Store(now)

	type firing struct {
		rule  models.AlertRule
		alert *models.Alert
	}
	var fired []firing

	e.mu.Lock()
	for _, cr := range e.rules {
		if !cr.rule.Enabled {
			continue
		}

		violated, err := cr.cond.Evaluate(vars)
		if err != nil {
			// An unevaluable rule never fires; it would otherwise page on
			// missing data.
			e.evalErrors.Add(1)
			logger.WithComponent("alerting").Warnf(
				"Rule %s evaluation failed: %v", cr.rule.Name, err,
			)
			cr.violations = 0
			continue
		}

		if !violated {
			cr.violations = 0
			continue
		}

		if cr.violations == 0 || (cr.rule.Window > 0 && now.Sub(cr.windowStart) > cr.rule.Window) {
			cr.violations = 0
			cr.windowStart = now
		}
		cr.violations++

		if cr.violations < cr.rule.ConsecutiveViolations {
			continue
		}
		if !cr.lastFired.IsZero() && now.Sub(cr.lastFired) < cr.rule.Cooldown {
			continue
		}
		if _, alreadyOpen := e.open[cr.rule.ID]; alreadyOpen {
			continue
		}

		alert := &models.Alert{
			ID:           models.NewUUID(),
			RuleID:       cr.rule.ID,
			RuleName:     cr.rule.Name,
			Severity:     cr.rule.Severity,
			TriggeredAt:  now,
			CurrentValue: primaryValue(cr.cond, vars),
			Condition:    cr.rule.Condition,
			Resolution:   models.AlertOpen,
			Message:      fmt.Sprintf("Condition %q held for %d evaluations", cr.rule.Condition, cr.violations),
		}
		cr.lastFired = now
		cr.violations = 0
		e.open[cr.rule.ID] = alert
		e.appendRecentLocked(*alert)
		fired = append(fired, firing{rule: cr.rule, alert: alert})
	}
	e.mu.Unlock()

	for _, f := range fired {
		logger.WithComponent("alerting").Warnf("Alert fired: %s (%s)", f.rule.Name, f.rule.Condition)
		if e.publisher != nil {
			e.publisher.AlertFired(f.alert)
		}
		if f.rule.AutoRemediate {
			e.remediate(ctx, f.rule, f.alert)
		}
	}
}

// remediate runs the rule's actions in order, stopping at the first success.
// Every attempt is recorded, successful or not.
func (e *Engine) remediate(ctx context.Context, rule models.AlertRule, alert *models.Alert) {
	e.mu.Lock()
	alert.RemediationAttempted = true
	e.mu.Unlock()

	for _, action := range rule.Actions {
		result := e.executor.Execute(ctx, action, alert.ID)
		if result == nil {
			continue
		}

		e.mu.Lock()
		e.results = append(e.results, *result)
		if len(e.results) > e.historyLimit() {
			e.results = e.results[len(e.results)-e.historyLimit():]
		}
		e.mu.Unlock()

		if result.Success {
			return
		}
	}
}

// ResolveTick re-evaluates open alerts and auto-resolves ones whose condition
// no longer holds.
func (e *Engine) ResolveTick(ctx context.Context) {
	vars := e.variables()

	var resolved []*models.Alert
	e.mu.Lock()
	for ruleID, alert := range e.open {
		cr, ok := e.rules[ruleID]
		if !ok {
			delete(e.open, ruleID)
			continue
		}
		violated, err := cr.cond.Evaluate(vars)
		if err != nil || violated {
			continue
		}
		delete(e.open, ruleID)
		resolved = append(resolved, alert)
	}
	e.mu.Unlock()

	for _, alert := range resolved {
		e.resolveAlert(alert)
	}
}

func (e *Engine) resolveAlert(alert *models.Alert) {
	now := time.Now()
	alert.Resolution = models.AlertResolved
	alert.ResolvedAt = &now

	e.mu.Lock()
	e.appendRecentLocked(*alert)
	e.mu.Unlock()

	logger.WithComponent("alerting").Infof("Alert resolved: %s", alert.RuleName)
	if e.publisher != nil {
		e.publisher.AlertResolved(alert)
	}
}

// Acknowledge marks an open alert as seen without closing it.
func (e *Engine) Acknowledge(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, alert := range e.open {
		if alert.ID == alertID && alert.Resolution == models.AlertOpen {
			alert.Resolution = models.AlertAcknowledged
			return true
		}
	}
	return false
}

// Resolve closes an open alert by operator request.
func (e *Engine) Resolve(alertID string) bool {
	var found *models.Alert
	e.mu.Lock()
	for ruleID, alert := range e.open {
		if alert.ID == alertID {
			delete(e.open, ruleID)
			found = alert
			break
		}
	}
	e.mu.Unlock()

	if found == nil {
		return false
	}
	e.resolveAlert(found)
	return true
}

// Status assembles the operator-facing alerting snapshot.
func (e *Engine) Status() models.AlertingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := models.AlertingStatus{
		Running:          e.running.Load(),
		RuleCount:        len(e.rules),
		EvaluationErrors: e.evalErrors.Load(),
	}
	for _, alert := range e.open {
		status.OpenAlerts = append(status.OpenAlerts, *alert)
	}
	status.RecentAlerts = append(status.RecentAlerts, e.recent...)
	status.RecentResults = append(status.RecentResults, e.results...)
	if t, ok := e.lastEval.Load().(time.Time); ok {
		status.LastEvaluatedAt = &t
	}
	return status
}

func (e *Engine) appendRecentLocked(alert models.Alert) {
	e.recent = append(e.recent, alert)
	if len(e.recent) > e.historyLimit() {
		e.recent = e.recent[len(e.recent)-e.historyLimit():]
	}
}

func (e *Engine) historyLimit() int {
	if e.cfg.HistorySize > 0 {
		return e.cfg.HistorySize
	}
	return 100
}

// primaryValue picks the current value of the first metric the condition
// references, for display on the alert.
func primaryValue(cond *Condition, vars map[string]float64) float64 {
	for _, name := range cond.Metrics() {
		if v, ok := vars[name]; ok {
			return v
		}
	}
	return 0
}
