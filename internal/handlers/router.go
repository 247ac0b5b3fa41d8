package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

// Backend holds what the loopback chat backend is built from.
type Backend struct {
	Validator   middleware.TokenValidator
	ChatRepo    repositories.ChatRepository
	MessageRepo repositories.MessageRepository
	UserRepo    repositories.UserRepository
	Hub         *ws.Hub
	Lifecycle   *telemetry.LifecycleEmitter
	Debug       bool
}

// NewRouter wires the REST routes, the websocket endpoint and /metrics.
func NewRouter(b Backend) *gin.Engine {
	if b.Hub == nil {
		b.Hub = ws.NewHub()
	}
	chatHandler := NewChatHandler(b.ChatRepo, b.MessageRepo, b.UserRepo)
	chatWS := ws.NewChatWebSocketHandler(b.Hub, b.ChatRepo, b.MessageRepo, b.Validator, b.Lifecycle)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-sync-backend"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(b.Validator)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChat)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)

	router.GET("/ws", chatWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterDebugRoutes(router, b.Lifecycle, b.Debug)
	return router
}
