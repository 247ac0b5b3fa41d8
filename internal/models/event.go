package models

import (
	"encoding/json"
	"fmt"
)

// Event names exchanged over the realtime transport.
const (
	EventNewMessage        = "new-message"
	EventMessageSeen       = "message-seen"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventPresenceSnapshot  = "presence-snapshot"

	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// Event is a single realtime frame.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an Event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// RoomPayload carries join-room, leave-room, typing-start and typing-stop.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// TypingPayload carries user-typing and user-stopped-typing.
type TypingPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// SeenPayload carries message-seen in both directions.
type SeenPayload struct {
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// PresencePayload carries a full presence snapshot.
type PresencePayload struct {
	UserIDs []string `json:"user_ids"`
}
