package main

import (
	"context"
	"log"

	"chat-sync/internal/config"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

// The loopback backend serves the chat API and the realtime endpoint from memory,
// for local development and end-to-end runs of the client.
func main() {
	cfg, err := config.LoadBackend()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	shutdown, err := telemetry.SetupTracing(ctx, "chat-sync-backend", cfg.OTelEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() { _ = shutdown(ctx) }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("lifecycle publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))

	lifecycle := telemetry.NewLifecycleEmitter(publisher, cfg.RoutingKey, "chat-sync-backend", cfg.Environment).
		OnError(observability.IncAMQPPublishError)

	if cfg.JWTSecret == "" {
		log.Printf("CHAT_JWT_SECRET not set, accepting unverified tokens")
	}

	router := handlers.NewRouter(handlers.Backend{
		Validator:   middleware.NewJWTValidator(cfg.JWTSecret),
		ChatRepo:    repositories.NewChatRepo(),
		MessageRepo: repositories.NewMessageRepo(),
		UserRepo:    repositories.NewUserRepo(),
		Hub:         ws.NewHub(),
		Lifecycle:   lifecycle,
		Debug:       cfg.Debug,
	})

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
