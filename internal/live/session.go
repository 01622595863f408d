package live

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mossy-p/signaling-relay/internal/models"
)

var ErrIdentityChanged = errors.New("connection is bound to a different room or peer")

// Session routes the signals read from one connection. The first signal binds
// the connection to its (roomId, peerId) pair for the rest of its life.
type Session struct {
	hub    *Hub
	conn   Conn
	roomID string
	peerID string
}

func (h *Hub) NewSession(conn Conn) *Session {
	return &Session{hub: h, conn: conn}
}

// Bound returns the pair this session is bound to, if any.
func (s *Session) Bound() (roomID, peerID string, ok bool) {
	return s.roomID, s.peerID, s.roomID != ""
}

// Handle applies one signal. A signal naming a different room or peer than
// the binding is answered with an error event and discarded.
func (s *Session) Handle(sig models.Signal) error {
	if s.roomID == "" {
		s.roomID, s.peerID = sig.RoomID, sig.PeerID
	} else if sig.RoomID != s.roomID || sig.PeerID != s.peerID {
		err := fmt.Errorf("%w: bound to %s/%s", ErrIdentityChanged, s.roomID, s.peerID)
		s.Reject(err)
		return err
	}

	switch sig.Type {
	case models.SignalTypeJoin:
		s.hub.Join(sig.RoomID, sig.PeerID, sig.PeerInfo, s.conn)
	case models.SignalTypeLeave:
		s.hub.Leave(sig.RoomID, sig.PeerID)
	case models.SignalTypeOffer, models.SignalTypeAnswer, models.SignalTypeCandidate:
		s.hub.Forward(sig)
	case models.SignalTypePing:
		send(s.conn, s.peerID, models.Event{Type: models.EventPong})
	}
	return nil
}

// Reject reports err to the peer without touching room state.
func (s *Session) Reject(err error) {
	send(s.conn, s.peerID, models.ErrorEvent(err))
}

// Close removes the peer if this connection still represents it.
func (s *Session) Close() {
	if s.roomID == "" {
		return
	}
	s.hub.Disconnect(s.roomID, s.peerID, s.conn)
	slog.Debug("session closed", "room", s.roomID, "peer", s.peerID)
}
