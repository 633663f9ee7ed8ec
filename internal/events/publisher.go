package events

import (
	"github.com/adaptivesql/pooltuner/pkg/models"
)

type Publisher struct {
	bus       *EventBus
	component string
}

func NewPublisher(bus *EventBus, component string) *Publisher {
	return &Publisher{bus: bus, component: component}
}

func (p *Publisher) publish(event *models.Event) {
	if event.Component == "" {
		event.Component = p.component
	}
	p.bus.Publish(event)
}

func (p *Publisher) ScalingStarted(action models.ScalingAction, reason string) {
	event := models.NewEvent(models.EventTypeScalingStarted, p.component, "Scaling started: "+string(action)).
		WithData(map[string]interface{}{"action": action, "reason": reason})
	p.publish(event)
}

func (p *Publisher) ScalingComplete(scalingEvent *models.ScalingEvent) {
	msg := "Scaling complete: " + string(scalingEvent.Action)
	event := models.NewEvent(models.EventTypeScalingComplete, p.component, msg).
		WithData(scalingEvent)
	p.publish(event)
}

func (p *Publisher) ScalingFailed(reason string, err error) {
	event := models.NewEvent(models.EventTypeScalingFailed, p.component, "Scaling failed: "+reason).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"reason": reason,
			"error":  err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) ConnectionRecycled(connID, reason string) {
	event := models.NewEvent(models.EventTypeConnectionRecycled, p.component, "Connection recycled").
		WithData(map[string]interface{}{"conn_id": connID, "reason": reason})
	p.publish(event)
}

func (p *Publisher) HealthChanged(from, to models.HealthStatus) {
	event := models.NewEvent(models.EventTypeHealthChanged, p.component, "Health status changed").
		WithData(map[string]interface{}{"from": from, "to": to})
	if to == models.HealthCritical || to == models.HealthDegraded {
		event.WithSeverity(models.SeverityCritical)
	} else if to == models.HealthWarning {
		event.WithSeverity(models.SeverityWarning)
	}
	p.publish(event)
}

func (p *Publisher) AlertFired(alert *models.Alert) {
	severity := models.SeverityWarning
	if alert.Severity == models.AlertCritical {
		severity = models.SeverityCritical
	}
	event := models.NewEvent(models.EventTypeAlertFired, p.component, "Alert fired: "+alert.RuleName).
		WithSeverity(severity).
		WithData(alert)
	p.publish(event)
}

func (p *Publisher) AlertResolved(alert *models.Alert) {
	event := models.NewEvent(models.EventTypeAlertResolved, p.component, "Alert resolved: "+alert.RuleName).
		WithData(alert)
	p.publish(event)
}

func (p *Publisher) Remediation(result *models.RemediationResult) {
	msg := "Remediation " + string(result.Action)
	if result.Success {
		msg += " succeeded"
	} else {
		msg += " failed"
	}
	event := models.NewEvent(models.EventTypeRemediation, p.component, msg).
		WithData(result)
	if !result.Success {
		event.WithSeverity(models.SeverityWarning)
	}
	p.publish(event)
}

func (p *Publisher) Error(message string, err error) {
	event := models.NewEvent(models.EventTypeError, p.component, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
