package realtime

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"chat-sync/internal/api"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/telemetry"
)

// LoadHistory fetches roomID's history and other participant through the chat API.
// The result replaces the room's timeline only if roomID is still the active room
// when it arrives; optimistic entries not yet in the history are kept.
func (s *Service) LoadHistory(ctx context.Context, roomID string) (models.RoomDetail, error) {
	if roomID == "" {
		return models.RoomDetail{}, ErrNoRoom
	}
	if err := s.requireSession(); err != nil {
		return models.RoomDetail{}, err
	}
	detail, err := s.api.GetRoom(ctx, roomID)
	if err != nil {
		herr := &HistoryError{RoomID: roomID, Err: err}
		s.disp.do(func() {
			s.histErr[roomID] = herr
			s.emitMessages(roomID)
		})
		return models.RoomDetail{}, herr
	}
	s.disp.do(func() { s.historyLoaded(roomID, detail) })
	return detail, nil
}

// HistoryErr returns the error of the last failed history load for roomID, if the
// room has not loaded successfully since.
func (s *Service) HistoryErr(roomID string) error {
	var err error
	s.disp.do(func() { err = s.histErr[roomID] })
	return err
}

// Messages returns roomID's timeline in ascending timestamp order.
func (s *Service) Messages(roomID string) []models.Message {
	var msgs []models.Message
	s.disp.do(func() {
		if t, ok := s.timelines[roomID]; ok {
			msgs = t.messages()
		}
	})
	return msgs
}

// OnMessagesChange subscribes to timeline changes of every room.
func (s *Service) OnMessagesChange(fn func(MessagesChange)) func() {
	return s.messageSubs.subscribe(fn)
}

// Send appends an optimistic message to roomID and posts it to the chat API. The
// returned message is the timeline entry after the call. On failure the entry is
// marked failed and a *SendError carrying the draft is returned.
func (s *Service) Send(ctx context.Context, roomID, body string, kind models.MessageKind) (models.Message, error) {
	if roomID == "" {
		return models.Message{}, ErrNoRoom
	}
	if kind == "" {
		kind = models.KindText
	}
	if !kind.Valid() {
		return models.Message{}, ErrInvalidKind
	}
	if strings.TrimSpace(body) == "" {
		return models.Message{}, ErrEmptyMessage
	}

	var (
		provisional models.Message
		err         error
	)
	if !s.disp.do(func() {
		if s.identity == nil {
			err = ErrUnauthenticated
			return
		}
		provisional = s.appendProvisional(roomID, body, kind)
	}) {
		return models.Message{}, ErrClosed
	}
	if err != nil {
		return models.Message{}, err
	}

	stored, err := s.api.SendMessage(ctx, api.SendRequest{
		RoomID:          roomID,
		Body:            body,
		Kind:            kind,
		ClientMessageID: provisional.ClientMessageID,
	})
	if err != nil {
		observability.IncSend("failed")
		s.disp.do(func() {
			if t, ok := s.timelines[roomID]; ok && t.markFailed(provisional.ClientMessageID) {
				s.emitMessages(roomID)
			}
			s.recordLifecycle(telemetry.LifecyclePayload{Event: telemetry.EventSendFailed, RoomID: roomID, Reason: err.Error()})
		})
		provisional.Status = models.StatusFailed
		return provisional, &SendError{RoomID: roomID, Draft: body, Kind: kind, Err: err}
	}
	observability.IncSend("sent")

	result := stored
	s.disp.do(func() {
		result = s.confirmSent(roomID, stored)
		s.emit(models.EventSendMessage, stored)
	})
	return result, nil
}

func (s *Service) appendProvisional(roomID, body string, kind models.MessageKind) models.Message {
	clientID := uuid.NewString()
	msg := models.Message{
		ID:              clientID,
		RoomID:          roomID,
		SenderID:        s.self(),
		Body:            body,
		Kind:            kind,
		Status:          models.StatusSending,
		ClientMessageID: clientID,
		CreatedAt:       s.clock.Now(),
		Own:             true,
		Provisional:     true,
	}
	s.timeline(roomID).append(msg)
	s.emitMessages(roomID)
	s.applyToConversation(msg)
	return msg
}

// confirmSent feeds the API's copy of a sent message through reconciliation; whichever
// of it and the realtime echo arrives second is absorbed by the first.
func (s *Service) confirmSent(roomID string, stored models.Message) models.Message {
	if stored.RoomID == "" {
		stored.RoomID = roomID
	}
	stored.Own = true
	s.applyToConversation(stored)
	if e := s.reconcile(stored, models.StatusSent, roomID == s.active); e != nil {
		return e.msg
	}
	stored.Status = furthest(stored.Status, models.StatusSent)
	return stored
}

func (s *Service) receiveMessage(msg models.Message) {
	if msg.RoomID == "" || msg.ID == "" {
		log.Printf("realtime: dropping message without room or id")
		return
	}
	if s.recent.seen(msg.RoomID, msg.ID) {
		observability.IncDuplicateMessage()
		return
	}
	msg.Own = msg.SenderID == s.self()
	msg.Provisional = false
	if msg.Status == "" && !msg.Own {
		msg.Status = models.StatusDelivered
	}
	s.applyToConversation(msg)
	s.reconcile(msg, models.StatusDelivered, msg.RoomID == s.active)
}

// reconcile applies a confirmed message to its room's timeline. A known id is a
// duplicate and may only advance the stored status; an own message replaces its
// optimistic entry; anything else is appended when appendNew is set.
func (s *Service) reconcile(msg models.Message, status models.DeliveryStatus, appendNew bool) *entry {
	t, ok := s.timelines[msg.RoomID]
	if !ok {
		if !appendNew {
			return nil
		}
		t = s.timeline(msg.RoomID)
	}

	if e, ok := t.byID[msg.ID]; ok {
		if e.msg.Own && t.advance(e, status) {
			s.emitMessages(msg.RoomID)
		}
		return e
	}
	if msg.Own {
		if e := t.match(msg, s.cfg.ReconcileWindow); e != nil {
			t.replace(e, msg, status)
			observability.IncReconciledMessage()
			s.emitMessages(msg.RoomID)
			return e
		}
	}
	if !appendNew {
		return nil
	}
	if msg.Own {
		msg.Status = furthest(msg.Status, status)
	}
	e := t.append(msg)
	s.emitMessages(msg.RoomID)
	return e
}

// receiveSeen applies a read receipt from the other participant to our own messages.
func (s *Service) receiveSeen(seen models.SeenPayload) {
	if seen.RoomID == "" || seen.UserID == s.self() {
		return
	}
	t, ok := s.timelines[seen.RoomID]
	if !ok {
		return
	}
	if t.markRead(seen.MessageID) {
		s.emitMessages(seen.RoomID)
	}
}

// historyLoaded rebuilds the timeline from history, then carries over entries the
// history does not know yet: optimistic ones without a server copy and events that
// arrived while the request was in flight.
func (s *Service) historyLoaded(roomID string, detail models.RoomDetail) {
	s.updateParticipant(roomID, detail.Other)
	if roomID != s.active {
		return
	}
	delete(s.histErr, roomID)

	self := s.self()
	fresh := newTimeline()
	for _, msg := range detail.Messages {
		if msg.ID == "" {
			continue
		}
		if _, dup := fresh.byID[msg.ID]; dup {
			continue
		}
		if msg.RoomID == "" {
			msg.RoomID = roomID
		}
		msg.Own = msg.SenderID == self
		if msg.Status == "" {
			msg.Status = models.StatusDelivered
		}
		fresh.append(msg)
	}

	if old, ok := s.timelines[roomID]; ok {
		for _, e := range old.entries {
			if !e.msg.Provisional {
				if _, known := fresh.byID[e.msg.ID]; !known {
					fresh.append(e.msg)
				}
				continue
			}
			if _, known := fresh.byClientID[e.msg.ClientMessageID]; known {
				continue
			}
			if fresh.adopt(e.msg, s.cfg.ReconcileWindow) {
				continue
			}
			fresh.append(e.msg)
		}
	}
	s.timelines[roomID] = fresh
	s.emitMessages(roomID)
}

func (s *Service) timeline(roomID string) *timeline {
	t, ok := s.timelines[roomID]
	if !ok {
		t = newTimeline()
		s.timelines[roomID] = t
	}
	return t
}

func (s *Service) emitMessages(roomID string) {
	var msgs []models.Message
	if t, ok := s.timelines[roomID]; ok {
		msgs = t.messages()
	}
	s.messageSubs.emit(MessagesChange{RoomID: roomID, Messages: msgs})
}
