package handlers

import (
	"net/http"

	"family-organizer/internal/auth"
	"family-organizer/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WebSocketHandler struct {
	hub *websocket.Hub
}

func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket upgrades the connection and streams the caller's view.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	h.hub.ServeWS(c, userID)
}

// GetConnections reports how many live connections the caller has open.
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "connections": h.hub.ClientCount(userID)})
}
