package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/api"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

// sendStub answers SendMessage with a function so replies can echo the request.
type sendStub struct {
	mocks.ChatAPIMock
	send func(ctx context.Context, req api.SendRequest) (models.Message, error)
}

func (s *sendStub) SendMessage(ctx context.Context, req api.SendRequest) (models.Message, error) {
	return s.send(ctx, req)
}

func withSendStub(stub *sendStub) func(*Config, *Deps) {
	return func(_ *Config, d *Deps) { d.API = stub }
}

func TestInboundMessagesDeduplicated(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r1")
	now := h.clock.Now()

	p.send(t, models.EventNewMessage, message("m1", "r1", "u2", "hello", now))
	p.send(t, models.EventNewMessage, message("m1", "r1", "u2", "hello", now))
	p.send(t, models.EventNewMessage, message("m2", "r1", "u2", "again", now.Add(time.Second)))

	require.Eventually(t, func() bool { return len(h.svc.Messages("r1")) == 2 }, waitFor, tick)
	msgs := h.svc.Messages("r1")
	assert.Equal(t, []string{"m1", "m2"}, ids(msgs))
	assert.Equal(t, models.StatusDelivered, msgs[0].Status)
	assert.False(t, msgs[0].Own)
}

func TestTimelineReadsInTimestampOrder(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r1")
	t1 := h.clock.Now()

	p.send(t, models.EventNewMessage, message("m2", "r1", "u2", "two", t1.Add(time.Second)))
	p.send(t, models.EventNewMessage, message("m1", "r1", "u2", "one", t1))
	p.send(t, models.EventNewMessage, message("m3", "r1", "u2", "three", t1.Add(2*time.Second)))

	require.Eventually(t, func() bool { return len(h.svc.Messages("r1")) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(h.svc.Messages("r1")))
}

func TestInactiveRoomMessagesOnlyTouchConversations(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	p.send(t, models.EventNewMessage, message("m1", "r2", "u3", "psst", h.clock.Now()))
	require.Eventually(t, func() bool { return len(h.svc.Conversations()) == 1 }, waitFor, tick)

	assert.Empty(t, h.svc.Messages("r2"))
	conv := h.svc.Conversations()[0]
	assert.Equal(t, "r2", conv.RoomID)
	assert.Equal(t, "u3", conv.Other.ID)
	assert.Equal(t, 1, conv.Unread)
	assert.Equal(t, "psst", conv.LastPreview)
}

func TestSendReconcilesByClientID(t *testing.T) {
	stub := &sendStub{}
	h := newHarness(t, withSendStub(stub))
	stub.send = func(ctx context.Context, req api.SendRequest) (models.Message, error) {
		return models.Message{
			ID: "m9", RoomID: req.RoomID, SenderID: "u1", Body: req.Body, Kind: req.Kind,
			ClientMessageID: req.ClientMessageID, CreatedAt: h.clock.Now(),
		}, nil
	}
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	sent, err := h.svc.Send(context.Background(), "r1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "m9", sent.ID)
	assert.Equal(t, models.StatusSent, sent.Status)
	assert.False(t, sent.Provisional)
	assert.NotEmpty(t, sent.ClientMessageID)

	event := p.nextOf(t, models.EventSendMessage)
	var outbound models.Message
	require.NoError(t, event.Decode(&outbound))
	assert.Equal(t, "m9", outbound.ID)

	p.send(t, models.EventNewMessage, outbound)
	require.Eventually(t, func() bool {
		msgs := h.svc.Messages("r1")
		return len(msgs) == 1 && msgs[0].Status == models.StatusDelivered
	}, waitFor, tick)
	assert.True(t, h.svc.Messages("r1")[0].Own)
}

func TestEchoBeforeResponseReconcilesByContent(t *testing.T) {
	stub := &sendStub{}
	h := newHarness(t, withSendStub(stub))
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	stub.send = func(ctx context.Context, req api.SendRequest) (models.Message, error) {
		echo := message("m9", "r1", "u1", req.Body, h.clock.Now().Add(3*time.Second))
		p.send(t, models.EventNewMessage, echo)
		require.Eventually(t, func() bool {
			msgs := h.svc.Messages("r1")
			return len(msgs) == 1 && msgs[0].ID == "m9"
		}, waitFor, tick)
		echo.ClientMessageID = req.ClientMessageID
		return echo, nil
	}

	sent, err := h.svc.Send(context.Background(), "r1", "hi", models.KindText)
	require.NoError(t, err)
	assert.Equal(t, "m9", sent.ID)

	msgs := h.svc.Messages("r1")
	require.Len(t, msgs, 1)
	assert.Equal(t, models.StatusDelivered, msgs[0].Status)
	assert.False(t, msgs[0].Provisional)
}

func TestEchoOutsideWindowIsNotMerged(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	h.svc.disp.do(func() { h.svc.appendProvisional("r1", "hi", models.KindText) })
	p.send(t, models.EventNewMessage, message("m9", "r1", "u1", "hi", h.clock.Now().Add(31*time.Second)))

	require.Eventually(t, func() bool { return len(h.svc.Messages("r1")) == 2 }, waitFor, tick)
	msgs := h.svc.Messages("r1")
	assert.True(t, msgs[0].Provisional)
	assert.Equal(t, "m9", msgs[1].ID)
}

func TestSendFailureKeepsDraft(t *testing.T) {
	stub := &sendStub{send: func(ctx context.Context, req api.SendRequest) (models.Message, error) {
		return models.Message{}, &api.StatusError{Code: 500}
	}}
	h := newHarness(t, withSendStub(stub))
	h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	msg, err := h.svc.Send(context.Background(), "r1", "are you there?", models.KindText)
	require.Error(t, err)

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, "are you there?", sendErr.Draft)
	assert.Equal(t, "r1", sendErr.RoomID)
	var status *api.StatusError
	assert.True(t, errors.As(err, &status))

	assert.Equal(t, models.StatusFailed, msg.Status)
	msgs := h.svc.Messages("r1")
	require.Len(t, msgs, 1)
	assert.Equal(t, models.StatusFailed, msgs[0].Status)
}

func TestSendValidatesInput(t *testing.T) {
	h := newHarness(t)
	h.online(t, "u1")

	_, err := h.svc.Send(context.Background(), "r1", "   ", models.KindText)
	require.ErrorIs(t, err, ErrEmptyMessage)
	_, err = h.svc.Send(context.Background(), "r1", "hi", models.MessageKind("sticker"))
	require.ErrorIs(t, err, ErrInvalidKind)
	assert.Empty(t, h.svc.Messages("r1"))
}

func TestSeenReceiptMarksOwnMessagesRead(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r1")
	now := h.clock.Now()

	p.send(t, models.EventNewMessage, message("m1", "r1", "u1", "one", now))
	p.send(t, models.EventNewMessage, message("m2", "r1", "u1", "two", now.Add(time.Second)))
	p.send(t, models.EventNewMessage, message("m3", "r1", "u1", "three", now.Add(2*time.Second)))
	require.Eventually(t, func() bool { return len(h.svc.Messages("r1")) == 3 }, waitFor, tick)

	p.send(t, models.EventMessageSeen, models.SeenPayload{RoomID: "r1", UserID: "u2", MessageID: "m2"})
	require.Eventually(t, func() bool {
		return h.svc.Messages("r1")[1].Status == models.StatusRead
	}, waitFor, tick)

	msgs := h.svc.Messages("r1")
	assert.Equal(t, models.StatusRead, msgs[0].Status)
	assert.Equal(t, models.StatusDelivered, msgs[2].Status)
}

func TestLoadHistoryKeepsUnsentEntries(t *testing.T) {
	stub := &sendStub{send: func(ctx context.Context, req api.SendRequest) (models.Message, error) {
		return models.Message{}, errors.New("offline")
	}}
	h := newHarness(t, withSendStub(stub))
	h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	_, err := h.svc.Send(context.Background(), "r1", "draft", models.KindText)
	require.Error(t, err)

	earlier := h.clock.Now().Add(-time.Minute)
	stub.On("GetRoom", mock.Anything, "r1").Return(models.RoomDetail{
		Room:     models.Room{ID: "r1", User1ID: "u1", User2ID: "u2"},
		Other:    models.Participant{ID: "u2", Username: "bob"},
		Messages: []models.Message{message("m1", "r1", "u2", "hello", earlier)},
	}, nil).Once()

	_, err = h.svc.LoadHistory(context.Background(), "r1")
	require.NoError(t, err)

	msgs := h.svc.Messages("r1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "draft", msgs[1].Body)
	assert.Equal(t, models.StatusFailed, msgs[1].Status)
	stub.AssertExpectations(t)
}

func TestLateHistoryForInactiveRoomIsDropped(t *testing.T) {
	h := newHarness(t)
	h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	h.api.On("GetRoom", mock.Anything, "r1").Run(func(mock.Arguments) {
		h.svc.SetActiveRoom("r2")
	}).Return(models.RoomDetail{
		Messages: []models.Message{message("m1", "r1", "u2", "late", h.clock.Now())},
	}, nil).Once()

	_, err := h.svc.LoadHistory(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, h.svc.Messages("r1"))
}

func TestLoadHistoryFailure(t *testing.T) {
	h := newHarness(t)
	h.online(t, "u1")
	h.svc.SetActiveRoom("r1")
	h.api.On("GetRoom", mock.Anything, "r1").Return(nil, errors.New("timeout")).Once()

	_, err := h.svc.LoadHistory(context.Background(), "r1")
	var histErr *HistoryError
	require.True(t, errors.As(err, &histErr))
	assert.Equal(t, "r1", histErr.RoomID)
	require.Error(t, h.svc.HistoryErr("r1"))
}

func TestResendAfterFailureConfirmsNewEntry(t *testing.T) {
	calls := 0
	stub := &sendStub{}
	h := newHarness(t, withSendStub(stub))
	stub.send = func(ctx context.Context, req api.SendRequest) (models.Message, error) {
		calls++
		if calls == 1 {
			return models.Message{}, errors.New("offline")
		}
		return message("m9", req.RoomID, "u1", req.Body, h.clock.Now()), nil
	}
	h.online(t, "u1")
	h.svc.SetActiveRoom("r1")

	_, err := h.svc.Send(context.Background(), "r1", "hi", models.KindText)
	require.Error(t, err)
	h.clock.Advance(time.Second)
	sent, err := h.svc.Send(context.Background(), "r1", "hi", models.KindText)
	require.NoError(t, err)
	assert.Equal(t, "m9", sent.ID)

	msgs := h.svc.Messages("r1")
	require.Len(t, msgs, 2)
	assert.Equal(t, models.StatusFailed, msgs[0].Status)
	assert.True(t, msgs[0].Provisional)
	assert.Equal(t, "m9", msgs[1].ID)
	assert.Equal(t, models.StatusSent, msgs[1].Status)
}

func TestMessageIDsAreScopedToRooms(t *testing.T) {
	h := newHarness(t)
	p := h.online(t, "u1")
	h.svc.SetActiveRoom("r2")
	now := h.clock.Now()

	p.send(t, models.EventNewMessage, message("1", "r1", "u3", "elsewhere", now))
	p.send(t, models.EventNewMessage, message("1", "r2", "u2", "here", now))

	require.Eventually(t, func() bool { return len(h.svc.Messages("r2")) == 1 }, waitFor, tick)
	assert.Equal(t, "here", h.svc.Messages("r2")[0].Body)
	require.Eventually(t, func() bool { return len(h.svc.Conversations()) == 2 }, waitFor, tick)
}

func TestSendRequiresRoom(t *testing.T) {
	h := newHarness(t)
	h.online(t, "u1")

	_, err := h.svc.Send(context.Background(), "", "hi", models.KindText)
	require.ErrorIs(t, err, ErrNoRoom)

	_, err = h.svc.NewChatView().Send(context.Background(), "hi", models.KindText)
	require.ErrorIs(t, err, ErrNoRoom)
	assert.Empty(t, h.svc.Conversations())
	assert.Empty(t, h.svc.Messages(""))
}
