package telemetry

import (
	"context"
	"log"
	"time"
)

// Lifecycle event names.
const (
	EventConnected          = "connected"
	EventDisconnected       = "disconnected"
	EventReconnectExhausted = "reconnect_exhausted"
	EventSendFailed         = "send_failed"
	EventWSConnect          = "ws_connect"
	EventWSDisconnect       = "ws_disconnect"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// LifecycleEmitter exports connection and delivery lifecycle events.
type LifecycleEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	onError     func()
}

type LifecycleEnvelope struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	OccurredAt    string           `json:"occurred_at"`
	Service       string           `json:"service"`
	Environment   string           `json:"environment"`
	UserID        string           `json:"user_id,omitempty"`
	Payload       LifecyclePayload `json:"payload"`
}

type LifecyclePayload struct {
	Event   string `json:"event"`
	RoomID  string `json:"room_id,omitempty"`
	ConnID  string `json:"conn_id,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func NewLifecycleEmitter(publisher Publisher, routingKey, service, environment string) *LifecycleEmitter {
	return &LifecycleEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// OnError registers a hook called after a failed publish.
func (e *LifecycleEmitter) OnError(fn func()) *LifecycleEmitter {
	if e != nil {
		e.onError = fn
	}
	return e
}

// Emit publishes one lifecycle event. A nil emitter drops it.
func (e *LifecycleEmitter) Emit(ctx context.Context, userID string, payload LifecyclePayload) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := LifecycleEnvelope{
		SchemaVersion: 1,
		EventType:     "chat_lifecycle",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("lifecycle publish failed: event=%s err=%v", payload.Event, err)
		if e.onError != nil {
			e.onError()
		}
	}
}
