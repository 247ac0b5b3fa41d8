package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.LifecycleEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/lifecycle-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lifecycle emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), userIDFromContext(c), telemetry.LifecyclePayload{
			Event:  "debug",
			Reason: "lifecycle test request_id=" + requestIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
