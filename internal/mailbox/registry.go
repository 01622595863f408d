// Package mailbox implements the polling relay: rooms hold addressed messages
// until each recipient has fetched them once.
package mailbox

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mossy-p/signaling-relay/internal/models"
	"github.com/mossy-p/signaling-relay/internal/presence"
)

// Registry is the process-wide table of polling rooms. The map is guarded by
// mu and each Room by its own lock, always acquired in that order.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	ttl      time.Duration
	observer presence.Observer
	newID    func() string
}

type Option func(*Registry)

// WithObserver reports joins, leaves and evictions to o.
func WithObserver(o presence.Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		rooms:    make(map[string]*Room),
		ttl:      ttl,
		observer: presence.Nop{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// lockRoom returns the room locked, creating it when create is set. It
// returns nil if the room does not exist and create is false.
func (r *Registry) lockRoom(roomID string, create bool, now time.Time) *Room {
	for {
		r.mu.Lock()
		room, ok := r.rooms[roomID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			room = newRoom(roomID, now)
			r.rooms[roomID] = room
			slog.Info("created room", "room", roomID)
		}
		r.mu.Unlock()

		room.mu.Lock()
		if !room.evicted {
			return room
		}
		// Swept between lookup and lock; retry against the live table.
		room.mu.Unlock()
	}
}

// Post applies sig to its room and returns the room as seen by the sender,
// including anything newly delivered to it.
func (r *Registry) Post(sig models.Signal, now time.Time) *models.RoomSnapshot {
	room := r.lockRoom(sig.RoomID, true, now)

	var changes []presence.Change
	switch sig.Type {
	case models.SignalTypeJoin:
		if room.join(sig.PeerID, sig.PeerInfo, now) {
			changes = append(changes, presence.Change{Kind: presence.Joined, RoomID: room.ID, PeerID: sig.PeerID})
		}
		room.post(&message{
			id:       r.newID(),
			kind:     sig.Type,
			from:     sig.PeerID,
			peerInfo: sig.PeerInfo,
		})
	case models.SignalTypeLeave:
		if room.leave(sig.PeerID) {
			changes = append(changes, presence.Change{Kind: presence.Left, RoomID: room.ID, PeerID: sig.PeerID})
		}
	case models.SignalTypeOffer, models.SignalTypeAnswer, models.SignalTypeCandidate:
		room.post(&message{
			id:   r.newID(),
			kind: sig.Type,
			from: sig.PeerID,
			to:   sig.ToPeerID,
			data: sig.Data,
		})
	}

	room.touch(sig.PeerID, now)
	snap := room.snapshot(room.pull(sig.PeerID))
	room.mu.Unlock()

	presence.Flush(r.observer, changes)
	return snap
}

// Query returns the room as seen by peerID, delivering anything owed to it.
// Unknown rooms yield an empty snapshot and are not created.
func (r *Registry) Query(roomID, peerID string, now time.Time) *models.RoomSnapshot {
	room := r.lockRoom(roomID, false, now)
	if room == nil {
		return models.EmptyRoom(roomID)
	}
	defer room.mu.Unlock()

	room.touch(peerID, now)
	return room.snapshot(room.pull(peerID))
}

// Sweep drops peers not seen within the ttl, then evicts rooms that are idle
// past the ttl or hold neither peers nor pending messages. It returns the
// number of rooms evicted.
func (r *Registry) Sweep(now time.Time) int {
	var changes []presence.Change

	r.mu.Lock()
	evicted := 0
	for id, room := range r.rooms {
		room.mu.Lock()
		for _, peerID := range room.stalePeers(now, r.ttl) {
			room.leave(peerID)
			changes = append(changes, presence.Change{Kind: presence.Left, RoomID: id, PeerID: peerID})
			slog.Debug("dropped stale peer", "room", id, "peer", peerID)
		}
		if room.expired(now, r.ttl) || room.empty() {
			room.evicted = true
			delete(r.rooms, id)
			evicted++
			changes = append(changes, presence.Change{Kind: presence.Closed, RoomID: id})
			slog.Info("evicted room", "room", id, "peers", len(room.peers), "pending", len(room.pending))
		}
		room.mu.Unlock()
	}
	r.mu.Unlock()

	presence.Flush(r.observer, changes)
	return evicted
}

// Evict removes a room immediately. It reports whether the room existed.
func (r *Registry) Evict(roomID string) bool {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if ok {
		room.mu.Lock()
		room.evicted = true
		delete(r.rooms, roomID)
		room.mu.Unlock()
	}
	r.mu.Unlock()

	if ok {
		r.observer.RoomClosed(roomID)
	}
	return ok
}

// Stats lists every room, ordered by id.
func (r *Registry) Stats() []models.RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.RoomStats, 0, len(r.rooms))
	for _, room := range r.rooms {
		room.mu.Lock()
		out = append(out, room.stats())
		room.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of rooms held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
