package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func TestPresenceSnapshotReplacesPrevious(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")

	p.send(t, models.EventPresenceSnapshot, models.PresencePayload{UserIDs: []string{"a", "b"}})
	require.Eventually(t, func() bool { return h.svc.IsOnline("a") }, waitFor, tick)

	p.send(t, models.EventPresenceSnapshot, models.PresencePayload{UserIDs: []string{"c", "b"}})
	require.Eventually(t, func() bool { return h.svc.IsOnline("c") }, waitFor, tick)

	assert.Equal(t, []string{"b", "c"}, h.svc.OnlineUsers())
	assert.False(t, h.svc.IsOnline("a"))
}

func TestPresenceClearedWhenConnectionDrops(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.dialer.Refuse(true)

	p.send(t, models.EventPresenceSnapshot, models.PresencePayload{UserIDs: []string{"u2"}})
	require.Eventually(t, func() bool { return h.svc.IsOnline("u2") }, waitFor, tick)

	require.NoError(t, p.conn.Close())
	require.Eventually(t, func() bool { return len(h.svc.OnlineUsers()) == 0 }, waitFor, tick)
}

func TestPresenceUpdatesConversationFlags(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.api.On("ListConversations", mock.Anything).Return([]models.Conversation{
		{RoomID: "r1", Other: models.Participant{ID: "u2", Username: "bob"}},
		{RoomID: "r2", Other: models.Participant{ID: "u3", Username: "eve"}},
	}, nil).Once()

	_, err := h.svc.LoadConversations(context.Background())
	require.NoError(t, err)

	p.send(t, models.EventPresenceSnapshot, models.PresencePayload{UserIDs: []string{"u3"}})
	require.Eventually(t, func() bool { return h.svc.IsOnline("u3") }, waitFor, tick)

	online := map[string]bool{}
	for _, c := range h.svc.Conversations() {
		online[c.Other.ID] = c.Other.Online
	}
	assert.Equal(t, map[string]bool{"u2": false, "u3": true}, online)
	h.api.AssertExpectations(t)
}
