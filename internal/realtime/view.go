package realtime

import (
	"context"
	"sync"

	"chat-sync/internal/models"
)

// ChatView drives the active-conversation surface: it owns the "current room" that
// the Service itself does not track for membership.
type ChatView struct {
	svc  *Service
	mu   sync.Mutex
	room string
}

// NewChatView returns a view with no room open.
func (s *Service) NewChatView() *ChatView {
	return &ChatView{svc: s}
}

// Room returns the open room.
func (v *ChatView) Room() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.room
}

// Open switches the view to roomID: it leaves the previous room, joins the new one,
// makes it active, marks it read and loads its history.
func (v *ChatView) Open(ctx context.Context, roomID string) (models.RoomDetail, error) {
	v.mu.Lock()
	prev := v.room
	v.room = roomID
	v.mu.Unlock()

	if prev != "" && prev != roomID {
		v.svc.NotifyStopTyping(prev)
		v.svc.LeaveRoom(prev)
	}
	v.svc.JoinRoom(roomID)
	v.svc.SetActiveRoom(roomID)
	v.svc.MarkRoomRead(roomID)
	return v.svc.LoadHistory(ctx, roomID)
}

// Send posts body to the open room.
func (v *ChatView) Send(ctx context.Context, body string, kind models.MessageKind) (models.Message, error) {
	return v.svc.Send(ctx, v.Room(), body, kind)
}

// Typing renews the local typing signal for the open room.
func (v *ChatView) Typing() {
	if room := v.Room(); room != "" {
		v.svc.NotifyTyping(room)
	}
}

// StopTyping ends the local typing signal for the open room.
func (v *ChatView) StopTyping() {
	if room := v.Room(); room != "" {
		v.svc.NotifyStopTyping(room)
	}
}

// Messages returns the open room's timeline.
func (v *ChatView) Messages() []models.Message {
	room := v.Room()
	if room == "" {
		return nil
	}
	return v.svc.Messages(room)
}

// TypingUsers returns who else is typing in the open room.
func (v *ChatView) TypingUsers() []string {
	room := v.Room()
	if room == "" {
		return nil
	}
	return v.svc.TypingUsers(room)
}

// Close flushes an owed typing-stop, leaves the room and clears the active room.
func (v *ChatView) Close() {
	v.mu.Lock()
	room := v.room
	v.room = ""
	v.mu.Unlock()
	if room == "" {
		return
	}

	v.svc.NotifyStopTyping(room)
	v.svc.LeaveRoom(room)
	v.svc.disp.do(func() {
		if v.svc.active == room {
			v.svc.active = ""
		}
	})
}
