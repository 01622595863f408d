// Package presence defines the hook both room cores use to report
// membership changes to the outside world.
package presence

// Observer receives membership changes after the room lock is released.
// Implementations must not call back into the registry that notified them.
type Observer interface {
	PeerJoined(roomID, peerID string)
	PeerLeft(roomID, peerID string)
	RoomClosed(roomID string)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) PeerJoined(string, string) {}
func (Nop) PeerLeft(string, string)   {}
func (Nop) RoomClosed(string)         {}

// Change is a buffered notification, collected under a lock and flushed
// afterwards.
type Change struct {
	Kind   ChangeKind
	RoomID string
	PeerID string
}

type ChangeKind int

const (
	Joined ChangeKind = iota
	Left
	Closed
)

// Flush delivers buffered changes in order.
func Flush(o Observer, changes []Change) {
	for _, c := range changes {
		switch c.Kind {
		case Joined:
			o.PeerJoined(c.RoomID, c.PeerID)
		case Left:
			o.PeerLeft(c.RoomID, c.PeerID)
		case Closed:
			o.RoomClosed(c.RoomID)
		}
	}
}
