package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SignalType represents the type of an inbound signaling message
type SignalType string

const (
	SignalTypeJoin      SignalType = "join"
	SignalTypeLeave     SignalType = "leave"
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "candidate"
	SignalTypePing      SignalType = "ping"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrMissingField = errors.New("missing required field")
	ErrUnknownType  = errors.New("unknown message type")
)

// Signal is an inbound message from a peer. PeerInfo and Data are opaque and
// passed through byte for byte.
type Signal struct {
	Type     SignalType      `json:"type"`
	RoomID   string          `json:"roomId"`
	PeerID   string          `json:"peerId"`
	ToPeerID string          `json:"toPeerId,omitempty"`
	PeerInfo json.RawMessage `json:"peerInfo,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Addressed reports whether the signal targets a single peer.
func (t SignalType) Addressed() bool {
	switch t {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypeCandidate:
		return true
	}
	return false
}

func (t SignalType) valid() bool {
	switch t {
	case SignalTypeJoin, SignalTypeLeave, SignalTypePing:
		return true
	}
	return t.Addressed()
}

// ParseSignal decodes and validates a raw message. Errors wrap ErrMalformed,
// ErrMissingField or ErrUnknownType.
func ParseSignal(raw []byte) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if sig.RoomID == "" {
		return Signal{}, fmt.Errorf("%w: roomId", ErrMissingField)
	}
	if sig.PeerID == "" {
		return Signal{}, fmt.Errorf("%w: peerId", ErrMissingField)
	}
	if !sig.Type.valid() {
		return Signal{}, fmt.Errorf("%w: %q", ErrUnknownType, sig.Type)
	}
	if sig.Type.Addressed() && sig.ToPeerID == "" {
		return Signal{}, fmt.Errorf("%w: toPeerId", ErrMissingField)
	}
	return sig, nil
}
