// Package live implements the push relay: peers hold a connection for the
// life of their membership and signals are forwarded as they arrive.
package live

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/signaling-relay/internal/models"
	"github.com/mossy-p/signaling-relay/internal/presence"
)

// Conn is a live connection to one peer. Send must not block; a failed send
// only affects that peer.
type Conn interface {
	Send(models.Event) error
	Close() error
}

type peer struct {
	id   string
	info json.RawMessage
	conn Conn
}

// Room holds the connected peers of one room id.
type Room struct {
	ID         string
	CreatedAt  time.Time
	LastUpdate time.Time

	mu      sync.Mutex
	peers   map[string]*peer
	evicted bool
}

// Hub is the process-wide table of live rooms. Rooms exist only while they
// have peers.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	observer presence.Observer
	now      func() time.Time
}

type Option func(*Hub)

func WithObserver(o presence.Observer) Option {
	return func(h *Hub) {
		if o != nil {
			h.observer = o
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:    make(map[string]*Room),
		observer: presence.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) lockRoom(roomID string, create bool) *Room {
	for {
		h.mu.Lock()
		room, ok := h.rooms[roomID]
		if !ok {
			if !create {
				h.mu.Unlock()
				return nil
			}
			now := h.now()
			room = &Room{
				ID:         roomID,
				CreatedAt:  now,
				LastUpdate: now,
				peers:      make(map[string]*peer),
			}
			h.rooms[roomID] = room
			slog.Info("created live room", "room", roomID)
		}
		h.mu.Unlock()

		room.mu.Lock()
		if !room.evicted {
			return room
		}
		room.mu.Unlock()
	}
}

// unlockAndDropIfEmpty releases room.mu, removing the room first if it has
// no peers left.
func (h *Hub) unlockAndDropIfEmpty(room *Room) bool {
	if len(room.peers) > 0 {
		room.mu.Unlock()
		return false
	}
	room.evicted = true
	room.mu.Unlock()

	h.mu.Lock()
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
	}
	h.mu.Unlock()
	slog.Info("removed empty live room", "room", room.ID)
	return true
}

// Join installs conn as the peer's connection, closing any previous one,
// announces the peer to the room and sends the joiner the room roster.
func (h *Hub) Join(roomID, peerID string, info json.RawMessage, conn Conn) {
	room := h.lockRoom(roomID, true)
	room.LastUpdate = h.now()

	var replaced Conn
	existing, ok := room.peers[peerID]
	if ok {
		if existing.conn != conn {
			replaced = existing.conn
		}
		existing.info = info
		existing.conn = conn
	} else {
		room.peers[peerID] = &peer{id: peerID, info: info, conn: conn}
	}

	room.broadcast(models.Event{
		Type:     models.EventPeerJoin,
		RoomID:   roomID,
		PeerID:   peerID,
		PeerInfo: info,
	}, peerID)
	send(conn, peerID, models.Event{
		Type:   models.EventRoomInfo,
		RoomID: roomID,
		Peers:  room.roster(),
	})
	room.mu.Unlock()

	if replaced != nil {
		slog.Info("replaced peer connection", "room", roomID, "peer", peerID)
		_ = replaced.Close()
	}
	if !ok {
		h.observer.PeerJoined(roomID, peerID)
	}
}

// Forward relays an offer, answer or candidate to its addressee. Signals for
// absent peers are dropped without telling the sender.
func (h *Hub) Forward(sig models.Signal) {
	evType, ok := models.ForwardEvent(sig.Type)
	if !ok {
		return
	}
	room := h.lockRoom(sig.RoomID, false)
	if room == nil {
		slog.Debug("dropped signal for unknown room", "room", sig.RoomID, "type", sig.Type)
		return
	}
	defer room.mu.Unlock()

	target, ok := room.peers[sig.ToPeerID]
	if !ok {
		slog.Debug("dropped signal for absent peer", "room", sig.RoomID, "peer", sig.ToPeerID, "type", sig.Type)
		return
	}
	room.LastUpdate = h.now()
	send(target.conn, target.id, models.Event{
		Type:     evType,
		RoomID:   sig.RoomID,
		SenderID: sig.PeerID,
		Data:     sig.Data,
	})
}

// Leave removes the peer unconditionally.
func (h *Hub) Leave(roomID, peerID string) {
	h.remove(roomID, peerID, nil)
}

// Disconnect removes the peer only if conn is still its connection, so a
// replaced connection closing late does not evict its successor.
func (h *Hub) Disconnect(roomID, peerID string, conn Conn) {
	h.remove(roomID, peerID, conn)
}

func (h *Hub) remove(roomID, peerID string, conn Conn) {
	room := h.lockRoom(roomID, false)
	if room == nil {
		return
	}
	p, ok := room.peers[peerID]
	if !ok || (conn != nil && p.conn != conn) {
		room.mu.Unlock()
		return
	}
	delete(room.peers, peerID)
	room.LastUpdate = h.now()
	room.broadcast(models.Event{
		Type:   models.EventPeerLeave,
		RoomID: roomID,
		PeerID: peerID,
	}, peerID)

	closed := h.unlockAndDropIfEmpty(room)
	h.observer.PeerLeft(roomID, peerID)
	if closed {
		h.observer.RoomClosed(roomID)
	}
}

// Evict drops a room and closes every connection in it.
func (h *Hub) Evict(roomID string) bool {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	var conns []Conn
	if ok {
		room.mu.Lock()
		room.evicted = true
		for _, p := range room.peers {
			conns = append(conns, p.conn)
		}
		room.peers = make(map[string]*peer)
		room.mu.Unlock()
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if ok {
		h.observer.RoomClosed(roomID)
	}
	return ok
}

// Stats lists every live room, ordered by id.
func (h *Hub) Stats() []models.RoomStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.RoomStats, 0, len(h.rooms))
	for _, room := range h.rooms {
		room.mu.Lock()
		out = append(out, models.RoomStats{
			ID:         room.ID,
			Variant:    "live",
			PeerCount:  len(room.peers),
			CreatedAt:  room.CreatedAt,
			LastUpdate: room.LastUpdate,
		})
		room.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (r *Room) roster() []models.PeerView {
	out := make([]models.PeerView, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, models.PeerView{ID: p.id, Info: p.info})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Room) broadcast(ev models.Event, excludePeerID string) {
	for id, p := range r.peers {
		if id != excludePeerID {
			send(p.conn, id, ev)
		}
	}
}

func send(conn Conn, peerID string, ev models.Event) {
	if err := conn.Send(ev); err != nil {
		slog.Warn("failed to send event", "peer", peerID, "type", ev.Type, "error", err)
	}
}
