package repositories

import (
	"context"
	"sync"

	"chat-sync/internal/models"
)

// UserRepository resolves participant profiles.
type UserRepository interface {
	GetUsers(ctx context.Context, ids []string) (map[string]models.Participant, error)
}

// UserRepo keeps profiles in memory. Unknown ids resolve to a bare participant.
type UserRepo struct {
	mu    sync.RWMutex
	users map[string]models.Participant
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]models.Participant)}
}

// Upsert stores or replaces a profile.
func (r *UserRepo) Upsert(p models.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Online = false
	r.users[p.ID] = p
}

func (r *UserRepo) GetUsers(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.Participant, len(ids))
	for _, id := range ids {
		if p, ok := r.users[id]; ok {
			out[id] = p
			continue
		}
		out[id] = models.Participant{ID: id}
	}
	return out, nil
}
