package realtime

import (
	"context"
	"sort"

	"chat-sync/internal/models"
)

// LoadConversations fetches the conversation list the first time it is called and
// returns the cached list afterwards. Use Refresh to force a fetch.
func (s *Service) LoadConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var (
		loaded bool
		list   []models.ConversationSummary
	)
	s.disp.do(func() {
		loaded = s.convsLoaded
		list = s.conversationList()
	})
	if loaded {
		return list, nil
	}
	return s.Refresh(ctx)
}

// Refresh re-fetches the conversation list unconditionally and replaces the cached one.
func (s *Service) Refresh(ctx context.Context) ([]models.ConversationSummary, error) {
	if err := s.requireSession(); err != nil {
		return nil, err
	}
	convs, err := s.api.ListConversations(ctx)

	var list []models.ConversationSummary
	if err != nil {
		cerr := &ConversationsError{Err: err}
		s.disp.do(func() {
			s.convsErr = cerr
			s.emitConversations()
		})
		return nil, cerr
	}
	s.disp.do(func() {
		if s.identity == nil {
			return
		}
		s.conversationsLoaded(convs)
		list = s.conversationList()
	})
	return list, nil
}

// Conversations returns the summaries, most recently active first.
func (s *Service) Conversations() []models.ConversationSummary {
	var list []models.ConversationSummary
	s.disp.do(func() { list = s.conversationList() })
	return list
}

// ConversationsErr returns the error of the last failed list fetch, if no fetch has
// succeeded since.
func (s *Service) ConversationsErr() error {
	var err error
	s.disp.do(func() {
		if s.convsErr != nil {
			err = s.convsErr
		}
	})
	return err
}

// OnConversationsChange subscribes to the conversation list.
func (s *Service) OnConversationsChange(fn func([]models.ConversationSummary)) func() {
	return s.convSubs.subscribe(fn)
}

// MarkRoomRead zeroes roomID's unread counter and, while connected, tells the other
// participant which message was seen last.
func (s *Service) MarkRoomRead(roomID string) {
	s.disp.do(func() {
		payload := models.SeenPayload{RoomID: roomID, UserID: s.self()}
		if t, ok := s.timelines[roomID]; ok {
			if last, ok := t.last(); ok && !last.Provisional {
				payload.MessageID = last.ID
			}
		}
		if c := s.conversation(roomID); c != nil {
			if payload.MessageID == "" {
				payload.MessageID = c.LastMessageID
			}
			if c.Unread != 0 {
				c.Unread = 0
				s.emitConversations()
			}
		}
		s.emit(models.EventMessageSeen, payload)
	})
}

func (s *Service) conversationsLoaded(convs []models.Conversation) {
	self := s.self()
	list := make([]*models.ConversationSummary, 0, len(convs))
	seen := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		if _, dup := seen[c.RoomID]; dup || c.RoomID == "" {
			continue
		}
		seen[c.RoomID] = struct{}{}

		summary := &models.ConversationSummary{
			RoomID:       c.RoomID,
			Other:        c.Other,
			Unread:       c.Unread,
			LastActivity: c.CreatedAt,
		}
		if c.LastMessage != nil {
			summary.LastPreview = c.LastMessage.Preview()
			summary.LastSenderID = c.LastMessage.SenderID
			summary.LastMessageID = c.LastMessage.ID
			summary.LastActivity = c.LastMessage.CreatedAt
		}
		if c.RoomID == s.active {
			summary.Unread = 0
		}
		summary.Other.Online = s.participantOnline(summary.Other.ID, self)
		list = append(list, summary)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastActivity.After(list[j].LastActivity)
	})

	s.convs = list
	s.convsLoaded = true
	s.convsErr = nil
	s.emitConversations()
}

// applyToConversation folds a message into its room's summary and moves the room to
// the front. Unknown rooms get a minimal summary until the next refresh.
func (s *Service) applyToConversation(msg models.Message) {
	if s.identity == nil {
		return
	}
	c := s.conversation(msg.RoomID)
	if c == nil {
		c = &models.ConversationSummary{RoomID: msg.RoomID}
		if !msg.Own {
			c.Other = models.Participant{ID: msg.SenderID}
			c.Other.Online = s.participantOnline(msg.SenderID, s.self())
		}
		s.convs = append([]*models.ConversationSummary{c}, s.convs...)
	} else if msg.ID != "" && !msg.Provisional && c.LastMessageID == msg.ID {
		return
	}

	c.LastPreview = msg.Preview()
	c.LastSenderID = msg.SenderID
	c.LastMessageID = msg.ID
	c.LastActivity = msg.CreatedAt
	if c.LastActivity.IsZero() {
		c.LastActivity = s.clock.Now()
	}
	switch {
	case msg.Own:
		// the sender has seen everything up to their own message
		c.Unread = 0
	case msg.RoomID == s.active:
		c.Unread = 0
	default:
		c.Unread++
	}
	s.moveToFront(msg.RoomID)
	s.emitConversations()
}

func (s *Service) updateParticipant(roomID string, other models.Participant) {
	c := s.conversation(roomID)
	if c == nil || other.ID == "" {
		return
	}
	other.Online = s.participantOnline(other.ID, s.self())
	if c.Other == other {
		return
	}
	c.Other = other
	s.emitConversations()
}

func (s *Service) refreshOnlineFlags() {
	self := s.self()
	changed := false
	for _, c := range s.convs {
		online := s.participantOnline(c.Other.ID, self)
		if c.Other.Online != online {
			c.Other.Online = online
			changed = true
		}
	}
	if changed {
		s.emitConversations()
	}
}

// participantOnline is forced true for the local user's own entries.
func (s *Service) participantOnline(userID, self string) bool {
	if userID == "" {
		return false
	}
	if userID == self {
		return true
	}
	_, ok := s.online[userID]
	return ok
}

func (s *Service) conversation(roomID string) *models.ConversationSummary {
	for _, c := range s.convs {
		if c.RoomID == roomID {
			return c
		}
	}
	return nil
}

func (s *Service) moveToFront(roomID string) {
	for i, c := range s.convs {
		if c.RoomID != roomID {
			continue
		}
		copy(s.convs[1:i+1], s.convs[:i])
		s.convs[0] = c
		return
	}
}

func (s *Service) conversationList() []models.ConversationSummary {
	out := make([]models.ConversationSummary, len(s.convs))
	for i, c := range s.convs {
		out[i] = *c
	}
	return out
}

func (s *Service) emitConversations() {
	s.convSubs.emit(s.conversationList())
}
