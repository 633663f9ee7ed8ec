package models

import "time"

type EventType string

const (
	EventTypeAcquired          EventType = "connection_acquired"
	EventTypeReleased          EventType = "connection_released"
	EventTypeScalingStarted    EventType = "scaling_started"
	EventTypeScalingComplete   EventType = "scaling_complete"
	EventTypeScalingFailed     EventType = "scaling_failed"
	EventTypeConnectionRecycled EventType = "connection_recycled"
	EventTypeHealthChanged     EventType = "health_changed"
	EventTypeAlertFired        EventType = "alert_fired"
	EventTypeAlertResolved     EventType = "alert_resolved"
	EventTypeRemediation       EventType = "remediation"
	EventTypeError             EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Component string        `json:"component,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, component, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Component: component,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
