package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/api"
	"chat-sync/internal/models"
)

type ChatAPIMock struct {
	mock.Mock
}

func (m *ChatAPIMock) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	args := m.Called(ctx)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ChatAPIMock) GetRoom(ctx context.Context, roomID string) (models.RoomDetail, error) {
	args := m.Called(ctx, roomID)
	var detail models.RoomDetail
	if val := args.Get(0); val != nil {
		detail = val.(models.RoomDetail)
	}
	return detail, args.Error(1)
}

func (m *ChatAPIMock) SendMessage(ctx context.Context, req api.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatAPIMock) CreateOrGetRoom(ctx context.Context, targetUserID string) (models.Room, error) {
	args := m.Called(ctx, targetUserID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}
