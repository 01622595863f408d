package models

import (
	"encoding/json"
	"time"
)

// ReplyType is the type of a polling reply
type ReplyType string

const (
	ReplyTypeRoom  ReplyType = "room"
	ReplyTypeError ReplyType = "error"
)

// PeerView is the serialized form of a peer. Connections are never included.
type PeerView struct {
	ID   string          `json:"id"`
	Info json.RawMessage `json:"info,omitempty"`
}

// MessageView is a mailbox message as handed to its recipient
type MessageView struct {
	ID         string          `json:"id"`
	Type       SignalType      `json:"type"`
	FromPeerID string          `json:"fromPeerId"`
	ToPeerID   string          `json:"toPeerId,omitempty"`
	PeerInfo   json.RawMessage `json:"peerInfo,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// RoomSnapshot is the room state returned to a polling peer. Messages only
// holds what was newly delivered to that peer by this request.
type RoomSnapshot struct {
	ID       string        `json:"id"`
	Peers    []PeerView    `json:"peers"`
	Messages []MessageView `json:"messages"`
}

// EmptyRoom is the snapshot for a room the registry does not hold.
func EmptyRoom(roomID string) *RoomSnapshot {
	return &RoomSnapshot{
		ID:       roomID,
		Peers:    []PeerView{},
		Messages: []MessageView{},
	}
}

// Reply is the body of every polling response
type Reply struct {
	Type  ReplyType     `json:"type"`
	Room  *RoomSnapshot `json:"room,omitempty"`
	Error string        `json:"error,omitempty"`
}

func RoomReply(room *RoomSnapshot) Reply {
	return Reply{Type: ReplyTypeRoom, Room: room}
}

func ErrorReply(err error) Reply {
	return Reply{Type: ReplyTypeError, Error: err.Error()}
}

// RoomStats describes a room for the admin API
type RoomStats struct {
	ID         string    `json:"id"`
	Variant    string    `json:"variant"`
	PeerCount  int       `json:"peerCount"`
	Pending    int       `json:"pending"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUpdate time.Time `json:"lastUpdate"`
}
