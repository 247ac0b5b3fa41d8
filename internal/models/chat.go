package models

import "time"

// Room represents a private chat between exactly two users.
type Room struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the participant of the room that is not userID.
func (r Room) Other(userID string) string {
	if r.User1ID == userID {
		return r.User2ID
	}
	return r.User1ID
}

// Participant describes the other side of a conversation.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
	Online   bool   `json:"-"`
}

// RoomDetail is the one-shot payload used when a room becomes active.
type RoomDetail struct {
	Room     Room        `json:"room"`
	Other    Participant `json:"other"`
	Messages []Message   `json:"messages"`
}

// Conversation is the list entry returned by the chat API.
type Conversation struct {
	RoomID      string      `json:"room_id"`
	Other       Participant `json:"other"`
	LastMessage *Message    `json:"last_message,omitempty"`
	Unread      int         `json:"unread"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ConversationSummary is the cached list projection of a room's latest activity.
type ConversationSummary struct {
	RoomID        string
	Other         Participant
	LastPreview   string
	LastSenderID  string
	LastMessageID string
	Unread        int
	LastActivity  time.Time
}
