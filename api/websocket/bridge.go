package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// EventBridge forwards internal pool events to WebSocket clients.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forwardEvent(event)
		}
	}
}

func (b *EventBridge) forwardEvent(event *models.Event) {
	topic := topicForEvent(event.Type)
	if topic == "" {
		return
	}

	message := &WebSocketEvent{
		Type:      string(event.Type),
		Topic:     topic,
		Component: event.Component,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}

	data, err := json.Marshal(message)
	if err != nil {
		logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	b.hub.BroadcastToTopic(topic, data)
}

// WebSocketEvent is the wire format sent to clients.
type WebSocketEvent struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic"`
	Component string      `json:"component,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// topicForEvent buckets event types into subscription topics. Per-acquisition
// events stay internal; broadcasting them would flood clients.
func topicForEvent(eventType models.EventType) string {
	switch eventType {
	case models.EventTypeScalingStarted, models.EventTypeScalingComplete, models.EventTypeScalingFailed:
		return "scaling"
	case models.EventTypeConnectionRecycled:
		return "lifecycle"
	case models.EventTypeHealthChanged:
		return "health"
	case models.EventTypeAlertFired, models.EventTypeAlertResolved, models.EventTypeRemediation:
		return "alerts"
	case models.EventTypeError:
		return "errors"
	default:
		return ""
	}
}
