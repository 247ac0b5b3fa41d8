package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func TestCreateOrGetChatIsSymmetric(t *testing.T) {
	repo := NewChatRepo()
	ctx := context.Background()

	a, err := repo.CreateOrGetChat(ctx, "2", "1")
	require.NoError(t, err)
	b, err := repo.CreateOrGetChat(ctx, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "1", a.User1ID)
	assert.Equal(t, "2", a.User2ID)

	_, err = repo.CreateOrGetChat(ctx, "1", "1")
	require.ErrorIs(t, err, ErrSelfChat)

	ok, err := repo.IsParticipant(ctx, a.ID, "2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsParticipant(ctx, a.ID, "3")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.IsParticipant(ctx, "missing", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.GetChat(ctx, "missing")
	require.ErrorIs(t, err, ErrChatNotFound)

	list, err := repo.ListChats(ctx, "1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateChatMessageIdempotentOnClientID(t *testing.T) {
	repo := NewMessageRepo()
	ctx := context.Background()

	first, err := repo.CreateChatMessage(ctx, models.Message{RoomID: "r1", SenderID: "1", Body: "hi", Kind: models.KindText, ClientMessageID: "c1"})
	require.NoError(t, err)
	again, err := repo.CreateChatMessage(ctx, models.Message{RoomID: "r1", SenderID: "1", Body: "hi", Kind: models.KindText, ClientMessageID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.StatusSent, first.Status)

	msgs, err := repo.GetChatMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	got, err := repo.GetMessage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Body)
	_, err = repo.GetMessage(ctx, "nope")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestUnreadFollowsSeenMarker(t *testing.T) {
	repo := NewMessageRepo()
	ctx := context.Background()

	m1, _ := repo.CreateChatMessage(ctx, models.Message{RoomID: "r1", SenderID: "1", Body: "a", Kind: models.KindText})
	_, _ = repo.CreateChatMessage(ctx, models.Message{RoomID: "r1", SenderID: "1", Body: "b", Kind: models.KindText})

	unread, err := repo.CountUnread(ctx, "r1", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	unread, err = repo.CountUnread(ctx, "r1", "1")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	require.NoError(t, repo.MarkSeen(ctx, "r1", "2", m1.ID))
	unread, _ = repo.CountUnread(ctx, "r1", "2")
	assert.Equal(t, 1, unread)

	require.NoError(t, repo.MarkSeen(ctx, "r1", "2", ""))
	unread, _ = repo.CountUnread(ctx, "r1", "2")
	assert.Equal(t, 0, unread)

	require.ErrorIs(t, repo.MarkSeen(ctx, "r1", "2", "missing"), ErrMessageNotFound)

	last, err := repo.LastMessage(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.Body)

	none, err := repo.LastMessage(ctx, "empty")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUserRepoFallsBackToBareParticipant(t *testing.T) {
	repo := NewUserRepo()
	repo.Upsert(models.Participant{ID: "1", Username: "ann", Online: true})

	users, err := repo.GetUsers(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, "ann", users["1"].Username)
	assert.False(t, users["1"].Online)
	assert.Equal(t, models.Participant{ID: "2"}, users["2"])
}
