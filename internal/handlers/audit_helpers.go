package handlers

import (
	"github.com/gin-gonic/gin"

	"chat-sync/internal/observability"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	if userID := c.GetString("userID"); userID != "" {
		return userID
	}
	return c.GetHeader("X-User-ID")
}
