package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signaling-relay/internal/models"
)

// PostSignal applies one signal to the polling mailbox and replies with the
// room as the sender now sees it.
func (h *Handlers) PostSignal(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorReply(errors.New("message too large")))
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorReply(fmt.Errorf("%w: %v", models.ErrMalformed, err)))
		return
	}

	sig, err := models.ParseSignal(body)
	if err != nil {
		slog.Debug("rejected signal", "error", err)
		c.JSON(http.StatusBadRequest, models.ErrorReply(err))
		return
	}

	room := h.mailbox.Post(sig, h.now())
	c.JSON(http.StatusOK, models.RoomReply(room))
}

// QuerySignal returns the room as seen by peerId, delivering anything it is
// owed. It never creates a room.
func (h *Handlers) QuerySignal(c *gin.Context) {
	roomID := c.Query("roomId")
	peerID := c.Query("peerId")
	if roomID == "" || peerID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorReply(fmt.Errorf("%w: roomId and peerId", models.ErrMissingField)))
		return
	}

	room := h.mailbox.Query(roomID, peerID, h.now())
	c.JSON(http.StatusOK, models.RoomReply(room))
}
