package mailbox

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/signaling-relay/internal/models"
)

// Peer is a member of a polling room
type Peer struct {
	ID       string
	Info     json.RawMessage
	LastSeen time.Time
}

// message is a pending mailbox entry. Joins have no fixed recipient: they are
// owed to every other peer currently in the room, recomputed on each pull.
type message struct {
	id          string
	kind        models.SignalType
	from        string
	to          string
	peerInfo    json.RawMessage
	data        json.RawMessage
	deliveredTo map[string]struct{}
}

func (m *message) delivered(peerID string) bool {
	_, ok := m.deliveredTo[peerID]
	return ok
}

func (m *message) view() models.MessageView {
	return models.MessageView{
		ID:         m.id,
		Type:       m.kind,
		FromPeerID: m.from,
		ToPeerID:   m.to,
		PeerInfo:   m.peerInfo,
		Data:       m.data,
	}
}

// Room groups the peers and pending messages of one room id. All methods
// expect mu to be held.
type Room struct {
	ID         string
	CreatedAt  time.Time
	LastUpdate time.Time

	mu      sync.Mutex
	peers   map[string]*Peer
	pending []*message
	evicted bool
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		CreatedAt:  now,
		LastUpdate: now,
		peers:      make(map[string]*Peer),
	}
}

// join upserts the peer and reports whether it was new.
func (r *Room) join(peerID string, info json.RawMessage, now time.Time) bool {
	r.LastUpdate = now
	if p, ok := r.peers[peerID]; ok {
		p.Info = info
		p.LastSeen = now
		return false
	}
	r.peers[peerID] = &Peer{ID: peerID, Info: info, LastSeen: now}
	return true
}

// leave removes the peer along with everything it wrote and everything
// addressed only to it. It reports whether the peer was present.
func (r *Room) leave(peerID string) bool {
	_, ok := r.peers[peerID]
	delete(r.peers, peerID)

	kept := r.pending[:0]
	for _, m := range r.pending {
		if m.from == peerID || m.to == peerID {
			continue
		}
		kept = append(kept, m)
	}
	clear(r.pending[len(kept):])
	r.pending = kept
	return ok
}

func (r *Room) touch(peerID string, now time.Time) {
	r.LastUpdate = now
	if p, ok := r.peers[peerID]; ok {
		p.LastSeen = now
	}
}

func (r *Room) post(m *message) {
	if m.deliveredTo == nil {
		m.deliveredTo = make(map[string]struct{})
	}
	r.pending = append(r.pending, m)
}

func (r *Room) isRecipient(m *message, peerID string) bool {
	if m.from == peerID {
		return false
	}
	if m.kind == models.SignalTypeJoin {
		_, member := r.peers[peerID]
		return member
	}
	return m.to == peerID
}

// covered reports whether every current recipient has received m.
func (r *Room) covered(m *message) bool {
	if m.kind != models.SignalTypeJoin {
		return m.delivered(m.to)
	}
	for id := range r.peers {
		if id != m.from && !m.delivered(id) {
			return false
		}
	}
	return true
}

// pull hands peerID everything it is owed and has not yet seen, in post
// order, then drops fully delivered messages.
func (r *Room) pull(peerID string) []models.MessageView {
	out := []models.MessageView{}
	for _, m := range r.pending {
		if !r.isRecipient(m, peerID) || m.delivered(peerID) {
			continue
		}
		m.deliveredTo[peerID] = struct{}{}
		out = append(out, m.view())
	}
	r.purge()
	return out
}

func (r *Room) purge() {
	kept := r.pending[:0]
	for _, m := range r.pending {
		if !r.covered(m) {
			kept = append(kept, m)
		}
	}
	clear(r.pending[len(kept):])
	r.pending = kept
}

func (r *Room) empty() bool {
	return len(r.peers) == 0 && len(r.pending) == 0
}

// expired reports whether the room has been idle longer than ttl.
func (r *Room) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.LastUpdate) > ttl
}

// stalePeers lists peers not seen within ttl.
func (r *Room) stalePeers(now time.Time, ttl time.Duration) []string {
	var ids []string
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) > ttl {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Room) snapshot(messages []models.MessageView) *models.RoomSnapshot {
	snap := models.EmptyRoom(r.ID)
	for _, p := range r.peers {
		snap.Peers = append(snap.Peers, models.PeerView{ID: p.ID, Info: p.Info})
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].ID < snap.Peers[j].ID })
	if messages != nil {
		snap.Messages = messages
	}
	return snap
}

func (r *Room) stats() models.RoomStats {
	return models.RoomStats{
		ID:         r.ID,
		Variant:    "polling",
		PeerCount:  len(r.peers),
		Pending:    len(r.pending),
		CreatedAt:  r.CreatedAt,
		LastUpdate: r.LastUpdate,
	}
}
