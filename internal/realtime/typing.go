package realtime

import (
	"sort"

	"chat-sync/internal/models"
)

// NotifyTyping signals that the local user is typing in roomID. Calls within the
// typing window coalesce into one typing-start; without a renewal a typing-stop
// follows automatically.
func (s *Service) NotifyTyping(roomID string) {
	s.disp.do(func() {
		if t, ok := s.localTyping[roomID]; ok {
			t.stop()
			s.localTyping[roomID] = s.after(s.unit(typingUnits), func() { s.expireLocalTyping(roomID) })
			return
		}
		if !s.emit(models.EventTypingStart, models.RoomPayload{RoomID: roomID}) {
			return
		}
		s.localTyping[roomID] = s.after(s.unit(typingUnits), func() { s.expireLocalTyping(roomID) })
	})
}

// NotifyStopTyping ends a typing signal started with NotifyTyping.
func (s *Service) NotifyStopTyping(roomID string) {
	s.disp.do(func() { s.stopLocalTyping(roomID) })
}

// TypingUsers returns who else is typing in roomID.
func (s *Service) TypingUsers(roomID string) []string {
	var ids []string
	s.disp.do(func() { ids = s.typingList(roomID) })
	return ids
}

// OnTypingChange subscribes to per-room typing sets.
func (s *Service) OnTypingChange(fn func(TypingChange)) func() {
	return s.typingSubs.subscribe(fn)
}

func (s *Service) expireLocalTyping(roomID string) {
	delete(s.localTyping, roomID)
	s.emit(models.EventTypingStop, models.RoomPayload{RoomID: roomID})
}

func (s *Service) stopLocalTyping(roomID string) {
	t, ok := s.localTyping[roomID]
	if !ok {
		return
	}
	t.stop()
	delete(s.localTyping, roomID)
	s.emit(models.EventTypingStop, models.RoomPayload{RoomID: roomID})
}

// flushTyping sends every typing-stop still owed.
func (s *Service) flushTyping() {
	for roomID := range s.localTyping {
		s.stopLocalTyping(roomID)
	}
}

func (s *Service) receiveTyping(p models.TypingPayload, typing bool) {
	if p.RoomID == "" || p.UserID == "" || p.UserID == s.self() {
		return
	}
	users := s.remoteTyping[p.RoomID]

	if !typing {
		t, ok := users[p.UserID]
		if !ok {
			return
		}
		t.stop()
		s.removeRemoteTyping(p.RoomID, p.UserID)
		return
	}

	if users == nil {
		users = make(map[string]*timer)
		s.remoteTyping[p.RoomID] = users
	}
	existing, renewed := users[p.UserID]
	existing.stop()
	users[p.UserID] = s.after(s.unit(typingUnits), func() {
		s.removeRemoteTyping(p.RoomID, p.UserID)
	})
	if !renewed {
		s.emitTyping(p.RoomID)
	}
}

func (s *Service) removeRemoteTyping(roomID, userID string) {
	users := s.remoteTyping[roomID]
	if _, ok := users[userID]; !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.remoteTyping, roomID)
	}
	s.emitTyping(roomID)
}

func (s *Service) clearRemoteTyping() {
	rooms := s.remoteTyping
	s.remoteTyping = make(map[string]map[string]*timer)
	for roomID, users := range rooms {
		for _, t := range users {
			t.stop()
		}
		s.emitTyping(roomID)
	}
}

func (s *Service) typingList(roomID string) []string {
	users := s.remoteTyping[roomID]
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) emitTyping(roomID string) {
	s.typingSubs.emit(TypingChange{RoomID: roomID, UserIDs: s.typingList(roomID)})
}
