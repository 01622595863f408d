package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListRooms reports every room held by either relay variant.
func (h *Handlers) ListRooms(c *gin.Context) {
	rooms := append(h.mailbox.Stats(), h.hub.Stats()...)
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// DeleteRoom evicts a room from both variants, closing live connections.
func (h *Handlers) DeleteRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	polled := h.mailbox.Evict(roomID)
	pushed := h.hub.Evict(roomID)
	if !polled && !pushed {
		c.JSON(http.StatusNotFound, gin.H{
			"type":  "error",
			"error": "Room not found",
		})
		return
	}

	slog.Info("room deleted by operator", "room", roomID, "admin", c.GetString("admin"))
	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}
