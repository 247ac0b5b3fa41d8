package realtime

import (
	"errors"
	"fmt"

	"chat-sync/internal/models"
)

var (
	ErrUnauthenticated = errors.New("realtime: no authenticated session")
	ErrClosed          = errors.New("realtime: service closed")
	ErrEmptyMessage    = errors.New("realtime: message body is empty")
	ErrInvalidKind     = errors.New("realtime: unknown message kind")
	ErrNoRoom          = errors.New("realtime: no room selected")
)

// SendError is returned when the chat API rejects a send. Draft holds the text the
// user typed so the input can be restored for a retry.
type SendError struct {
	RoomID string
	Draft  string
	Kind   models.MessageKind
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to room %s: %v", e.RoomID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// HistoryError is the error state of a room whose history failed to load.
type HistoryError struct {
	RoomID string
	Err    error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("load history of room %s: %v", e.RoomID, e.Err)
}

func (e *HistoryError) Unwrap() error { return e.Err }

// ConversationsError is the error state of the conversation list.
type ConversationsError struct {
	Err error
}

func (e *ConversationsError) Error() string {
	return fmt.Sprintf("load conversations: %v", e.Err)
}

func (e *ConversationsError) Unwrap() error { return e.Err }
