package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/signaling-relay/config"
	"github.com/mossy-p/signaling-relay/internal/models"
)

func dialSignal(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/signal"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readEvent(t *testing.T, c *websocket.Conn) models.Event {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev models.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal event %q: %v", msg, err)
	}
	return ev
}

func expectEvent(t *testing.T, c *websocket.Conn, want models.EventType) models.Event {
	t.Helper()
	ev := readEvent(t, c)
	if ev.Type != want {
		t.Fatalf("event type = %q, want %q (%+v)", ev.Type, want, ev)
	}
	return ev
}

func writeJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketSignalingFlow(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	alice := dialSignal(t, ts)
	writeJSON(t, alice, map[string]any{"type": "join", "roomId": "R", "peerId": "alice", "peerInfo": map[string]string{"name": "a"}})
	info := expectEvent(t, alice, models.EventRoomInfo)
	if len(info.Peers) != 1 || info.Peers[0].ID != "alice" {
		t.Fatalf("alice roster = %+v", info.Peers)
	}

	bob := dialSignal(t, ts)
	writeJSON(t, bob, map[string]any{"type": "join", "roomId": "R", "peerId": "bob"})
	info = expectEvent(t, bob, models.EventRoomInfo)
	if len(info.Peers) != 2 {
		t.Fatalf("bob roster = %+v, want 2 peers", info.Peers)
	}
	if string(info.Peers[0].Info) != `{"name":"a"}` {
		t.Errorf("alice info in roster = %s", info.Peers[0].Info)
	}

	joined := expectEvent(t, alice, models.EventPeerJoin)
	if joined.PeerID != "bob" {
		t.Errorf("peer-join names %q, want bob", joined.PeerID)
	}

	writeJSON(t, alice, map[string]any{"type": "offer", "roomId": "R", "peerId": "alice", "toPeerId": "bob", "data": map[string]string{"sdp": "v=0"}})
	offer := expectEvent(t, bob, models.EventPeerOffer)
	if offer.SenderID != "alice" || string(offer.Data) != `{"sdp":"v=0"}` {
		t.Errorf("offer = %+v", offer)
	}

	writeJSON(t, bob, map[string]any{"type": "ping", "roomId": "R", "peerId": "bob"})
	expectEvent(t, bob, models.EventPong)

	// alice disconnects: bob hears exactly one peer-leave.
	_ = alice.Close()
	left := expectEvent(t, bob, models.EventPeerLeave)
	if left.PeerID != "alice" {
		t.Errorf("peer-leave names %q, want alice", left.PeerID)
	}

	writeJSON(t, bob, map[string]any{"type": "ping", "roomId": "R", "peerId": "bob"})
	expectEvent(t, bob, models.EventPong)

	_ = bob.Close()
	waitFor(t, func() bool { return s.hub.Len() == 0 })
}

func TestWebSocketErrorsKeepConnectionOpen(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	c := dialSignal(t, ts)

	if err := c.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectEvent(t, c, models.EventError)

	writeJSON(t, c, map[string]any{"type": "join", "roomId": "R"})
	expectEvent(t, c, models.EventError)

	writeJSON(t, c, map[string]any{"type": "join", "roomId": "R", "peerId": "alice"})
	expectEvent(t, c, models.EventRoomInfo)

	writeJSON(t, c, map[string]any{"type": "join", "roomId": "OTHER", "peerId": "alice"})
	ev := expectEvent(t, c, models.EventError)
	if !strings.Contains(ev.Error, "bound") {
		t.Errorf("error = %q, want identity violation", ev.Error)
	}

	writeJSON(t, c, map[string]any{"type": "ping", "roomId": "R", "peerId": "alice"})
	expectEvent(t, c, models.EventPong)

	stats := s.hub.Stats()
	if len(stats) != 1 || stats[0].ID != "R" {
		t.Errorf("hub rooms = %+v, want only R", stats)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.WebSocket.MessagesPerSecond = 2
	})
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	c := dialSignal(t, ts)
	for i := 0; i < 3; i++ {
		writeJSON(t, c, map[string]any{"type": "ping", "roomId": "R", "peerId": "alice"})
	}
	expectEvent(t, c, models.EventPong)
	expectEvent(t, c, models.EventPong)
	ev := expectEvent(t, c, models.EventError)
	if !strings.Contains(ev.Error, "rate limit") {
		t.Errorf("error = %q, want rate limit", ev.Error)
	}
}

func TestWebSocketRejoinClosesOldConnection(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	bob := dialSignal(t, ts)
	writeJSON(t, bob, map[string]any{"type": "join", "roomId": "R", "peerId": "bob"})
	expectEvent(t, bob, models.EventRoomInfo)

	first := dialSignal(t, ts)
	writeJSON(t, first, map[string]any{"type": "join", "roomId": "R", "peerId": "alice"})
	expectEvent(t, first, models.EventRoomInfo)
	expectEvent(t, bob, models.EventPeerJoin)

	second := dialSignal(t, ts)
	writeJSON(t, second, map[string]any{"type": "join", "roomId": "R", "peerId": "alice"})
	expectEvent(t, second, models.EventRoomInfo)
	expectEvent(t, bob, models.EventPeerJoin)

	_ = first.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// The replaced connection's teardown must not announce alice leaving.
	writeJSON(t, bob, map[string]any{"type": "offer", "roomId": "R", "peerId": "bob", "toPeerId": "alice", "data": "x"})
	expectEvent(t, second, models.EventPeerOffer)

	writeJSON(t, bob, map[string]any{"type": "ping", "roomId": "R", "peerId": "bob"})
	if ev := readEvent(t, bob); ev.Type != models.EventPong {
		t.Errorf("bob got %q before pong, want no peer-leave", ev.Type)
	}
}
