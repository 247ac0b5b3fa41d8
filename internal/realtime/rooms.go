package realtime

import "chat-sync/internal/models"

// JoinRoom asks the server to deliver roomID's realtime traffic to this client.
// It is dropped, not queued, while disconnected.
func (s *Service) JoinRoom(roomID string) {
	s.disp.do(func() {
		s.emit(models.EventJoinRoom, models.RoomPayload{RoomID: roomID})
	})
}

// LeaveRoom releases a membership taken with JoinRoom. Dropped while disconnected.
func (s *Service) LeaveRoom(roomID string) {
	s.disp.do(func() {
		s.emit(models.EventLeaveRoom, models.RoomPayload{RoomID: roomID})
	})
}
