package repositories

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-sync/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrSelfChat     = errors.New("cannot create chat with self")
)

// ChatRepository abstracts private room storage.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, userID, friendID string) (models.Room, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	GetChat(ctx context.Context, chatID string) (models.Room, error)
	ListChats(ctx context.Context, userID string) ([]models.Room, error)
}

// ChatRepo keeps rooms in memory.
type ChatRepo struct {
	mu     sync.RWMutex
	rooms  map[string]models.Room
	byPair map[[2]string]string
	now    func() time.Time
}

// NewChatRepo constructs an empty ChatRepo.
func NewChatRepo() *ChatRepo {
	return &ChatRepo{
		rooms:  make(map[string]models.Room),
		byPair: make(map[[2]string]string),
		now:    time.Now,
	}
}

// CreateOrGetChat creates a room between two users if it does not already exist.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, userID, friendID string) (models.Room, error) {
	if userID == friendID {
		return models.Room{}, ErrSelfChat
	}
	participants := []string{userID, friendID}
	sort.Strings(participants)
	key := [2]string{participants[0], participants[1]}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPair[key]; ok {
		return r.rooms[id], nil
	}
	room := models.Room{
		ID:        uuid.NewString(),
		User1ID:   key[0],
		User2ID:   key[1],
		CreatedAt: r.now().UTC(),
	}
	r.rooms[room.ID] = room
	r.byPair[key] = room.ID
	return room, nil
}

// IsParticipant checks whether a user belongs to the room.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	room, err := r.GetChat(ctx, chatID)
	if errors.Is(err, ErrChatNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return room.User1ID == userID || room.User2ID == userID, nil
}

// GetChat fetches a room by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[chatID]
	if !ok {
		return models.Room{}, ErrChatNotFound
	}
	return room, nil
}

// ListChats returns the user's rooms, newest first.
func (r *ChatRepo) ListChats(ctx context.Context, userID string) ([]models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Room
	for _, room := range r.rooms {
		if room.User1ID == userID || room.User2ID == userID {
			result = append(result, room)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
