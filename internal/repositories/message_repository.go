package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-sync/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	// CreateChatMessage stores msg. A repeated client message id from the same sender
	// returns the message stored the first time.
	CreateChatMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetChatMessages(ctx context.Context, chatID string) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	LastMessage(ctx context.Context, chatID string) (*models.Message, error)
	MarkSeen(ctx context.Context, chatID, userID, messageID string) error
	CountUnread(ctx context.Context, chatID, userID string) (int, error)
}

// MessageRepo keeps messages in memory, per room in insertion order.
type MessageRepo struct {
	mu       sync.RWMutex
	byChat   map[string][]models.Message
	byID     map[string]models.Message
	byClient map[string]string
	// read marker per chat and user: number of messages seen
	seen map[string]map[string]int
	now  func() time.Time
}

// NewMessageRepo constructs an empty MessageRepo.
func NewMessageRepo() *MessageRepo {
	return &MessageRepo{
		byChat:   make(map[string][]models.Message),
		byID:     make(map[string]models.Message),
		byClient: make(map[string]string),
		seen:     make(map[string]map[string]int),
		now:      time.Now,
	}
}

func (r *MessageRepo) CreateChatMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientKey := ""
	if msg.ClientMessageID != "" {
		clientKey = msg.SenderID + "/" + msg.ClientMessageID
		if id, ok := r.byClient[clientKey]; ok {
			return r.byID[id], nil
		}
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = r.now().UTC()
	msg.Status = models.StatusSent
	msg.Own = false
	msg.Provisional = false

	r.byChat[msg.RoomID] = append(r.byChat[msg.RoomID], msg)
	r.byID[msg.ID] = msg
	if clientKey != "" {
		r.byClient[clientKey] = msg.ID
	}
	r.markSeenLocked(msg.RoomID, msg.SenderID, len(r.byChat[msg.RoomID]))
	return msg, nil
}

func (r *MessageRepo) GetChatMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.byChat[chatID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.byID[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (r *MessageRepo) LastMessage(ctx context.Context, chatID string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.byChat[chatID]
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

// MarkSeen moves userID's read marker up to messageID, or to the end when messageID is empty.
func (r *MessageRepo) MarkSeen(ctx context.Context, chatID, userID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.byChat[chatID]
	if messageID == "" {
		r.markSeenLocked(chatID, userID, len(msgs))
		return nil
	}
	for i, m := range msgs {
		if m.ID == messageID {
			r.markSeenLocked(chatID, userID, i+1)
			return nil
		}
	}
	return ErrMessageNotFound
}

func (r *MessageRepo) CountUnread(ctx context.Context, chatID, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.byChat[chatID]
	unread := 0
	for _, m := range msgs[r.seen[chatID][userID]:] {
		if m.SenderID != userID {
			unread++
		}
	}
	return unread, nil
}

func (r *MessageRepo) markSeenLocked(chatID, userID string, upTo int) {
	markers, ok := r.seen[chatID]
	if !ok {
		markers = make(map[string]int)
		r.seen[chatID] = markers
	}
	if upTo > markers[userID] {
		markers[userID] = upTo
	}
}
