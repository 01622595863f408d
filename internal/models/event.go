package models

import "encoding/json"

// EventType is the type of an event pushed over a live connection
type EventType string

const (
	EventRoomInfo      EventType = "room-info"
	EventPeerJoin      EventType = "peer-join"
	EventPeerOffer     EventType = "peer-offer"
	EventPeerAnswer    EventType = "peer-answer"
	EventPeerCandidate EventType = "peer-ice-candidate"
	EventPeerLeave     EventType = "peer-leave"
	EventPong          EventType = "pong"
	EventError         EventType = "error"
)

// Event is a message pushed to a connected peer
type Event struct {
	Type     EventType       `json:"type"`
	RoomID   string          `json:"roomId,omitempty"`
	PeerID   string          `json:"peerId,omitempty"`
	PeerInfo json.RawMessage `json:"peerInfo,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Peers    []PeerView      `json:"peers,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ForwardEvent maps an addressed signal type to the event its recipient sees.
func ForwardEvent(t SignalType) (EventType, bool) {
	switch t {
	case SignalTypeOffer:
		return EventPeerOffer, true
	case SignalTypeAnswer:
		return EventPeerAnswer, true
	case SignalTypeCandidate:
		return EventPeerCandidate, true
	}
	return "", false
}

func ErrorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error()}
}
