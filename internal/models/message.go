package models

import "time"

// MessageKind describes what a message body carries.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVoice MessageKind = "voice"
	KindVideo MessageKind = "video"
	KindFile  MessageKind = "file"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVoice, KindVideo, KindFile:
		return true
	}
	return false
}

// DeliveryStatus tracks a message from the local optimistic append to the peer reading it.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// rank orders statuses so updates never move a message backwards.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	}
	return 0
}

// Advances reports whether moving from s to next is a forward transition.
func (s DeliveryStatus) Advances(next DeliveryStatus) bool {
	if next == StatusFailed {
		return s == StatusSending
	}
	return next.rank() > s.rank()
}

// Message represents a chat message as exchanged with the chat API and the realtime transport.
type Message struct {
	ID              string         `json:"id"`
	RoomID          string         `json:"room_id"`
	SenderID        string         `json:"sender_id"`
	Body            string         `json:"body"`
	Kind            MessageKind    `json:"kind"`
	Status          DeliveryStatus `json:"status,omitempty"`
	ClientMessageID string         `json:"client_message_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`

	// Own is computed locally against the session identity and never sent.
	Own bool `json:"-"`
	// Provisional marks an optimistic entry that has not been matched with its server copy.
	Provisional bool `json:"-"`
}

// Preview returns the text shown for the message in conversation lists.
func (m Message) Preview() string {
	switch m.Kind {
	case KindImage:
		return "[image]"
	case KindVoice:
		return "[voice]"
	case KindVideo:
		return "[video]"
	case KindFile:
		return "[file]"
	}
	return m.Body
}
