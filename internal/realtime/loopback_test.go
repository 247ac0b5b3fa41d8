package realtime_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/api"
	"chat-sync/internal/auth"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/realtime"
	"chat-sync/internal/repositories"
	"chat-sync/internal/transport"
)

const eventually = 3 * time.Second

func startBackend(t *testing.T) (restURL, wsURL string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	users := repositories.NewUserRepo()
	users.Upsert(models.Participant{ID: "alice", Username: "Alice"})
	users.Upsert(models.Participant{ID: "bob", Username: "Bob"})

	router := handlers.NewRouter(handlers.Backend{
		Validator:   middleware.NewJWTValidator(""),
		ChatRepo:    repositories.NewChatRepo(),
		MessageRepo: repositories.NewMessageRepo(),
		UserRepo:    users,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func startClient(t *testing.T, restURL, wsURL, userID string) *realtime.Service {
	t.Helper()
	store := auth.NewStore()
	svc := realtime.New(realtime.Config{TimeUnit: 200 * time.Millisecond}, realtime.Deps{
		Auth:   store,
		Dialer: transport.NewWebSocketDialer(wsURL),
		API:    api.NewClient(restURL, store),
	})
	t.Cleanup(svc.Close)
	require.NoError(t, store.Login(auth.Identity{UserID: userID, Token: userID}))
	require.Eventually(t, svc.Online, eventually, 10*time.Millisecond)
	return svc
}

func TestTwoClientsExchangeMessages(t *testing.T) {
	restURL, wsURL := startBackend(t)
	alice := startClient(t, restURL, wsURL, "alice")
	bob := startClient(t, restURL, wsURL, "bob")
	ctx := context.Background()

	require.Eventually(t, func() bool { return alice.IsOnline("bob") && bob.IsOnline("alice") }, eventually, 10*time.Millisecond)

	room, err := alice.CreateOrGetRoom(ctx, "bob")
	require.NoError(t, err)

	aliceView := alice.NewChatView()
	_, err = aliceView.Open(ctx, room.ID)
	require.NoError(t, err)
	bobView := bob.NewChatView()
	detail, err := bobView.Open(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", detail.Other.Username)

	sent, err := aliceView.Send(ctx, "hi bob", models.KindText)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, sent.Status)

	require.Eventually(t, func() bool {
		msgs := bobView.Messages()
		return len(msgs) == 1 && msgs[0].ID == sent.ID
	}, eventually, 10*time.Millisecond)
	assert.False(t, bobView.Messages()[0].Own)

	require.Eventually(t, func() bool {
		msgs := aliceView.Messages()
		return len(msgs) == 1 && msgs[0].Status == models.StatusDelivered
	}, eventually, 10*time.Millisecond)

	bobView.Typing()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"bob"}, aliceView.TypingUsers())
	}, eventually, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(aliceView.TypingUsers()) == 0 }, eventually, 10*time.Millisecond)

	convs, err := bob.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "hi bob", convs[0].LastPreview)
	assert.Equal(t, 0, convs[0].Unread)
	assert.True(t, convs[0].Other.Online)
}

func TestPresenceFollowsDisconnect(t *testing.T) {
	restURL, wsURL := startBackend(t)
	alice := startClient(t, restURL, wsURL, "alice")
	bob := startClient(t, restURL, wsURL, "bob")

	require.Eventually(t, func() bool { return alice.IsOnline("bob") }, eventually, 10*time.Millisecond)

	bob.Disconnect()
	require.Eventually(t, func() bool { return !alice.IsOnline("bob") }, eventually, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, alice.OnlineUsers())
}
