package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mossy-p/signaling-relay/internal/live"
	"github.com/mossy-p/signaling-relay/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

var (
	errClientClosed   = errors.New("client connection closed")
	errSendBufferFull = errors.New("send buffer full")
	errRateLimited    = errors.New("rate limit exceeded, message discarded")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client is a websocket connection to one peer. It satisfies live.Conn.
type Client struct {
	ID   string
	Conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues ev without blocking.
func (c *Client) Send(ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and tears the
// connection down. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// HandleSignaling upgrades to a websocket and relays signals for the peer
// until the connection drops.
func (h *Handlers) HandleSignaling(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(conn)
	session := h.hub.NewSession(client)
	slog.Debug("websocket connected", "client", client.ID, "remote", conn.RemoteAddr().String())

	go client.writePump()
	h.readPump(client, session)
}

func (h *Handlers) readPump(c *Client, session *live.Session) {
	defer func() {
		session.Close()
		_ = c.Close()
		_ = c.Conn.Close()

		roomID, peerID, _ := session.Bound()
		slog.Debug("websocket disconnected", "client", c.ID, "room", roomID, "peer", peerID)
	}()

	c.Conn.SetReadLimit(h.maxBodyBytes)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.messagesPerSecond), h.messagesPerSecond)

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("websocket error", "client", c.ID, "error", err)
			}
			return
		}
		// Any traffic proves liveness.
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			session.Reject(errRateLimited)
			continue
		}

		sig, err := models.ParseSignal(message)
		if err != nil {
			session.Reject(err)
			continue
		}

		if err := session.Handle(sig); err != nil {
			slog.Info("rejected signal", "client", c.ID, "error", err)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("failed to write message", "client", c.ID, "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
