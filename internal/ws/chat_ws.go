package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// ChatWebSocketHandler serves the realtime endpoint.
type ChatWebSocketHandler struct {
	hub       *Hub
	chatRepo  repositories.ChatRepository
	msgRepo   repositories.MessageRepository
	validator middleware.TokenValidator
	lifecycle *telemetry.LifecycleEmitter
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler. lifecycle may be nil.
func NewChatWebSocketHandler(hub *Hub, chatRepo repositories.ChatRepository, msgRepo repositories.MessageRepository, validator middleware.TokenValidator, lifecycle *telemetry.LifecycleEmitter) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, chatRepo: chatRepo, msgRepo: msgRepo, validator: validator, lifecycle: lifecycle}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and registers the client.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	} else {
		parts := strings.SplitN(token, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}
		token = parts[1]
	}

	userID, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if claimed := c.Query("user_id"); claimed != "" && claimed != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)
	h.hub.Register(client)

	observability.IncWSActive()
	observability.IncWSEvent(telemetry.EventWSConnect)
	h.lifecycle.Emit(ctx, userID, telemetry.LifecyclePayload{Event: telemetry.EventWSConnect, ConnID: info.ConnID})

	go client.writePump()
	go h.readLoop(client)
}

func (h *ChatWebSocketHandler) readLoop(client *Client) {
	var closeReason string
	defer func() {
		h.hub.Unregister(client)
		observability.DecWSActive()
		observability.IncWSEvent(telemetry.EventWSDisconnect)
		h.lifecycle.Emit(context.Background(), client.Info.UserID, telemetry.LifecyclePayload{
			Event:  telemetry.EventWSDisconnect,
			ConnID: client.Info.ConnID,
			Reason: closeReason,
		})
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		var event models.Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("websocket bad frame: conn_id=%s err=%v", client.Info.ConnID, err)
			continue
		}
		h.dispatch(context.Background(), client, event)
	}
}

func (h *ChatWebSocketHandler) dispatch(ctx context.Context, client *Client, event models.Event) {
	userID := client.Info.UserID
	switch event.Type {
	case models.EventJoinRoom:
		var p models.RoomPayload
		if err := event.Decode(&p); err != nil {
			return
		}
		member, err := h.chatRepo.IsParticipant(ctx, p.RoomID, userID)
		if err != nil || !member {
			log.Printf("websocket join refused: room=%s user_id=%s", p.RoomID, userID)
			return
		}
		h.hub.Join(client, p.RoomID)

	case models.EventLeaveRoom:
		var p models.RoomPayload
		if err := event.Decode(&p); err != nil {
			return
		}
		h.hub.Leave(client, p.RoomID)

	case models.EventTypingStart, models.EventTypingStop:
		var p models.RoomPayload
		if err := event.Decode(&p); err != nil || !h.hub.IsMember(client, p.RoomID) {
			return
		}
		relayed := models.EventUserTyping
		if event.Type == models.EventTypingStop {
			relayed = models.EventUserStoppedTyping
		}
		out, err := models.NewEvent(relayed, models.TypingPayload{RoomID: p.RoomID, UserID: userID})
		if err != nil {
			return
		}
		h.hub.BroadcastRoom(p.RoomID, out, client)

	case models.EventMessageSeen:
		var p models.SeenPayload
		if err := event.Decode(&p); err != nil {
			return
		}
		member, err := h.chatRepo.IsParticipant(ctx, p.RoomID, userID)
		if err != nil || !member {
			return
		}
		if err := h.msgRepo.MarkSeen(ctx, p.RoomID, userID, p.MessageID); err != nil {
			log.Printf("mark seen failed: room=%s user_id=%s err=%v", p.RoomID, userID, err)
		}
		out, err := models.NewEvent(models.EventMessageSeen, models.SeenPayload{RoomID: p.RoomID, UserID: userID, MessageID: p.MessageID})
		if err != nil {
			return
		}
		h.hub.BroadcastRoom(p.RoomID, out, client)

	case models.EventSendMessage:
		var p models.Message
		if err := event.Decode(&p); err != nil {
			return
		}
		stored, err := h.msgRepo.GetMessage(ctx, p.ID)
		if err != nil || stored.SenderID != userID {
			log.Printf("websocket send-message refused: message_id=%s user_id=%s", p.ID, userID)
			return
		}
		room, err := h.chatRepo.GetChat(ctx, stored.RoomID)
		if err != nil {
			return
		}
		h.hub.DeliverMessage(room, stored)

	default:
		log.Printf("websocket unknown event: type=%s conn_id=%s", event.Type, client.Info.ConnID)
	}
}
