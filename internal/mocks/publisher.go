package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/telemetry"
)

// PublisherMock stands in for the lifecycle event publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// ExpectLifecycle expects one lifecycle envelope for the named event on routingKey.
func (m *PublisherMock) ExpectLifecycle(routingKey, event string) *mock.Call {
	return m.On("Publish", mock.Anything, routingKey, mock.MatchedBy(func(e telemetry.LifecycleEnvelope) bool {
		return e.EventType == "chat_lifecycle" && e.Payload.Event == event
	})).Return(nil).Once()
}
