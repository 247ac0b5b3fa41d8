package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

// ListChats returns the conversations of the authenticated user with their last
// message and unread count.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetString("userID")
	ctx := c.Request.Context()

	rooms, err := h.chatRepo.ListChats(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	otherIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		otherIDs = append(otherIDs, room.Other(userID))
	}
	users, err := h.userRepo.GetUsers(ctx, otherIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	chats := make([]models.Conversation, 0, len(rooms))
	for _, room := range rooms {
		last, err := h.messageRepo.LastMessage(ctx, room.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}
		unread, err := h.messageRepo.CountUnread(ctx, room.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}
		chats = append(chats, models.Conversation{
			RoomID:      room.ID,
			Other:       users[room.Other(userID)],
			LastMessage: last,
			Unread:      unread,
			CreatedAt:   room.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat creates or returns the private room between the caller and user_id.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if userID == req.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	room, err := h.chatRepo.CreateOrGetChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		log.Printf("create chat failed: request_id=%s err=%v", requestIDFromContext(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room})
}

// GetChat returns the room, its ordered history and the other participant.
func (h *ChatHandler) GetChat(c *gin.Context) {
	room, ok := h.loadRoom(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	ctx := c.Request.Context()

	msgs, err := h.messageRepo.GetChatMessages(ctx, room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	users, err := h.userRepo.GetUsers(ctx, []string{room.Other(userID)})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	c.JSON(http.StatusOK, models.RoomDetail{
		Room:     room,
		Other:    users[room.Other(userID)],
		Messages: msgs,
	})
}

// PostChatMessage stores a chat message. Realtime fan-out happens when the sender
// announces it with send-message.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	room, ok := h.loadRoom(c)
	if !ok {
		return
	}

	var req struct {
		Body            string             `json:"body" binding:"required"`
		Kind            models.MessageKind `json:"kind"`
		ClientMessageID string             `json:"client_message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message body is empty"})
		return
	}
	if req.Kind == "" {
		req.Kind = models.KindText
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message kind"})
		return
	}

	msg, err := h.messageRepo.CreateChatMessage(c.Request.Context(), models.Message{
		RoomID:          room.ID,
		SenderID:        c.GetString("userID"),
		Body:            req.Body,
		Kind:            req.Kind,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) loadRoom(c *gin.Context) (models.Room, bool) {
	room, err := h.chatRepo.GetChat(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return models.Room{}, false
	}
	if !isChatParticipant(room, c.GetString("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return models.Room{}, false
	}
	return room, true
}

func isChatParticipant(room models.Room, userID string) bool {
	return room.User1ID == userID || room.User2ID == userID
}
