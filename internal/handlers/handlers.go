package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signaling-relay/config"
	"github.com/mossy-p/signaling-relay/internal/live"
	"github.com/mossy-p/signaling-relay/internal/mailbox"
	"github.com/mossy-p/signaling-relay/internal/middleware"
)

// Handlers serves both relay variants over HTTP.
type Handlers struct {
	mailbox *mailbox.Registry
	hub     *live.Hub

	maxBodyBytes      int64
	messagesPerSecond int
	admin             config.AdminConfig
	now               func() time.Time
}

func New(cfg *config.Config, reg *mailbox.Registry, hub *live.Hub) *Handlers {
	return &Handlers{
		mailbox:           reg,
		hub:               hub,
		maxBodyBytes:      cfg.WebSocket.MaxMessageBytes,
		messagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		admin:             cfg.Admin,
		now:               time.Now,
	}
}

// NewRouter wires every route onto a gin engine.
func NewRouter(cfg *config.Config, h *Handlers) *gin.Engine {
	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Polling relay
	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/signal", h.PostSignal)
		apiGroup.GET("/signal", h.QuerySignal)
	}

	// Operator API, only mounted when an admin password is configured
	if cfg.Admin.Enabled() {
		adminGroup := apiGroup.Group("/admin")
		adminGroup.POST("/login", h.Login)
		adminGroup.GET("/rooms", middleware.JWTAuth(cfg.Admin.JWTSecret), h.ListRooms)
		adminGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.Admin.JWTSecret), h.DeleteRoom)
	}

	// Push relay
	router.GET("/ws/signal", h.HandleSignaling)

	return router
}
