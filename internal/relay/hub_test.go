package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeidlos/gridcall/internal/game"
	"github.com/zeidlos/gridcall/internal/signaling"
)

func newTestClient() *client {
	return &client{send: make(chan *signaling.Message, 32)}
}

func msgOf(t *testing.T, event, room, from string, payload any) *signaling.Message {
	t.Helper()
	msg, err := signaling.NewMessage(event, room, payload)
	if err != nil {
		t.Fatal(err)
	}
	msg.From = from
	return msg
}

func recv(t *testing.T, c *client) *signaling.Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("expected a queued message")
		return nil
	}
}

func recvNothing(t *testing.T, c *client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected %s message", msg.Event)
	default:
	}
}

func decodeSnap(t *testing.T, msg *signaling.Message) game.Snapshot {
	t.Helper()
	if msg.Event != signaling.EventRoomUpdate {
		t.Fatalf("event = %q, want room-update", msg.Event)
	}
	var snap game.Snapshot
	if err := msg.DecodePayload(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func decodeErr(t *testing.T, msg *signaling.Message) signaling.ErrorPayload {
	t.Helper()
	if msg.Event != signaling.EventRoomError {
		t.Fatalf("event = %q, want room-error", msg.Event)
	}
	var p signaling.ErrorPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p
}

// twoPlayerRoom joins a and b into room R1 and drains their queues.
func twoPlayerRoom(t *testing.T, h *Hub) (a, b *client) {
	t.Helper()
	a, b = newTestClient(), newTestClient()
	h.route(a, msgOf(t, signaling.EventJoinRoom, "R1", "origin-a", nil))
	h.route(b, msgOf(t, signaling.EventJoinRoom, "R1", "origin-b", nil))
	for len(a.send) > 0 {
		<-a.send
	}
	for len(b.send) > 0 {
		<-b.send
	}
	return a, b
}

func TestJoinBroadcastsSnapshot(t *testing.T) {
	h := NewHub()
	a := newTestClient()

	h.route(a, msgOf(t, signaling.EventJoinRoom, "R1", "origin-a", nil))

	snap := decodeSnap(t, recv(t, a))
	if len(snap.Players) != 1 || snap.Players[0] != "origin-a" {
		t.Errorf("players = %v, want [origin-a]", snap.Players)
	}
	if snap.Turn != game.MarkX {
		t.Errorf("turn = %q, want X", snap.Turn)
	}

	b := newTestClient()
	h.route(b, msgOf(t, signaling.EventJoinRoom, "R1", "origin-b", nil))

	// Both members see the two-player roster.
	for _, c := range []*client{a, b} {
		snap := decodeSnap(t, recv(t, c))
		if len(snap.Players) != 2 || snap.Players[0] != "origin-a" || snap.Players[1] != "origin-b" {
			t.Errorf("players = %v, want [origin-a origin-b]", snap.Players)
		}
	}
}

func TestJoinThirdPlayerRejected(t *testing.T) {
	h := NewHub()
	a, b := twoPlayerRoom(t, h)

	c := newTestClient()
	h.route(c, msgOf(t, signaling.EventJoinRoom, "R1", "origin-c", nil))

	p := decodeErr(t, recv(t, c))
	if p.Code != signaling.ErrCodeRoomFull {
		t.Errorf("code = %q, want room-full", p.Code)
	}
	recvNothing(t, a)
	recvNothing(t, b)
}

func TestMoveBroadcastsNewState(t *testing.T) {
	h := NewHub()
	a, b := twoPlayerRoom(t, h)

	h.route(a, msgOf(t, signaling.EventMakeMove, "R1", "origin-a", signaling.MovePayload{Index: 4}))

	for _, c := range []*client{a, b} {
		snap := decodeSnap(t, recv(t, c))
		if snap.Board[4] == nil || *snap.Board[4] != game.MarkX {
			t.Errorf("board[4] = %v, want X", snap.Board[4])
		}
		if snap.Turn != game.MarkO {
			t.Errorf("turn = %q, want O", snap.Turn)
		}
	}
}

func TestInvalidMoveRejectedToSenderOnly(t *testing.T) {
	h := NewHub()
	a, b := twoPlayerRoom(t, h)

	h.route(a, msgOf(t, signaling.EventMakeMove, "R1", "origin-a", signaling.MovePayload{Index: 4}))
	<-a.send
	<-b.send

	// Occupied cell, and out of turn anyway.
	h.route(a, msgOf(t, signaling.EventMakeMove, "R1", "origin-a", signaling.MovePayload{Index: 4}))

	p := decodeErr(t, recv(t, a))
	if p.Code != signaling.ErrCodeInvalidMove {
		t.Errorf("code = %q, want invalid-move", p.Code)
	}
	recvNothing(t, b)
}

func TestMoveWithoutRoomRejected(t *testing.T) {
	h := NewHub()
	c := newTestClient()

	h.route(c, msgOf(t, signaling.EventMakeMove, "R1", "origin-c", signaling.MovePayload{Index: 0}))

	p := decodeErr(t, recv(t, c))
	if p.Code != signaling.ErrCodeNotInRoom {
		t.Errorf("code = %q, want not-in-room", p.Code)
	}
}

func TestRestartKeepsSeats(t *testing.T) {
	h := NewHub()
	a, b := twoPlayerRoom(t, h)

	h.route(a, msgOf(t, signaling.EventMakeMove, "R1", "origin-a", signaling.MovePayload{Index: 0}))
	<-a.send
	<-b.send

	h.route(b, msgOf(t, signaling.EventRestart, "R1", "origin-b", nil))

	for _, c := range []*client{a, b} {
		snap := decodeSnap(t, recv(t, c))
		if snap.Board[0] != nil {
			t.Error("board not cleared by restart")
		}
		if snap.Turn != game.MarkX {
			t.Errorf("turn = %q after restart, want X", snap.Turn)
		}
		if len(snap.Players) != 2 {
			t.Errorf("players = %v, want both seats kept", snap.Players)
		}
	}
}

func TestMediaReadyNudgesFirstJoiner(t *testing.T) {
	h := NewHub()
	a, b := twoPlayerRoom(t, h)

	h.route(a, msgOf(t, signaling.EventMediaReady, "R1", "origin-a", nil))
	recvNothing(t, a)
	recvNothing(t, b)

	h.route(b, msgOf(t, signaling.EventMediaReady, "R1", "origin-b", nil))

	nudge := recv(t, a)
	if nudge.Event != signaling.EventReadyForOffer {
		t.Fatalf("event = %q, want ready-for-offer", nudge.Event)
	}
	recvNothing(t, b)

	// A repeated announcement re-triggers the nudge for lost deliveries.
	h.route(a, msgOf(t, signaling.EventMediaReady, "R1", "origin-a", nil))
	if got := recv(t, a); got.Event != signaling.EventReadyForOffer {
		t.Fatalf("event = %q, want repeated ready-for-offer", got.Event)
	}
}

func TestForwardNeverReflects(t *testing.T) {
	h := NewHub()
	a, b := twoPlayerRoom(t, h)

	offer := msgOf(t, signaling.EventOffer, "R1", "origin-a", signaling.OfferPayload{})
	h.route(a, offer)

	got := recv(t, b)
	if got.Event != signaling.EventOffer || got.From != "origin-a" {
		t.Errorf("forwarded = %s from %s, want offer from origin-a", got.Event, got.From)
	}
	recvNothing(t, a)
}

func TestLeaveFreesSeat(t *testing.T) {
	h := NewHub()
	a, b := twoPlayerRoom(t, h)

	h.route(b, msgOf(t, signaling.EventLeaveRoom, "R1", "origin-b", nil))

	snap := decodeSnap(t, recv(t, a))
	if len(snap.Players) != 1 || snap.Players[0] != "origin-a" {
		t.Errorf("players = %v after leave, want [origin-a]", snap.Players)
	}

	// The freed seat goes to the next joiner with the O mark.
	c := newTestClient()
	h.route(c, msgOf(t, signaling.EventJoinRoom, "R1", "origin-c", nil))
	if mark := h.rooms["R1"].marks["origin-c"]; mark != game.MarkO {
		t.Errorf("mark = %q, want O", mark)
	}
}

func TestEmptyRoomDeleted(t *testing.T) {
	h := NewHub()
	a := newTestClient()
	h.route(a, msgOf(t, signaling.EventJoinRoom, "R1", "origin-a", nil))
	<-a.send

	h.route(a, msgOf(t, signaling.EventLeaveRoom, "R1", "origin-a", nil))

	if _, ok := h.rooms["R1"]; ok {
		t.Error("empty room not deleted")
	}
}

// TestRelayEndToEnd drives the full websocket surface: two dialed clients
// join, one moves, both observe the broadcast.
func TestRelayEndToEnd(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := httptest.NewServer(NewRouter(hub))
	defer srv.Close()

	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v (resp %v)", err, resp)
	}
	resp.Body.Close()

	dial := func(t *testing.T) *websocket.Conn {
		t.Helper()
		conn, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	read := func(t *testing.T, conn *websocket.Conn) *signaling.Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg signaling.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return &msg
	}

	a := dial(t)
	b := dial(t)

	if err := a.WriteJSON(msgOf(t, signaling.EventJoinRoom, "E2E", "origin-a", nil)); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if snap := decodeSnap(t, read(t, a)); len(snap.Players) != 1 {
		t.Fatalf("players = %v, want one", snap.Players)
	}

	if err := b.WriteJSON(msgOf(t, signaling.EventJoinRoom, "E2E", "origin-b", nil)); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if snap := decodeSnap(t, read(t, a)); len(snap.Players) != 2 {
		t.Fatalf("players = %v after second join, want two", snap.Players)
	}
	if snap := decodeSnap(t, read(t, b)); len(snap.Players) != 2 {
		t.Fatalf("players = %v for joiner, want two", snap.Players)
	}

	if err := a.WriteJSON(msgOf(t, signaling.EventMakeMove, "E2E", "origin-a", signaling.MovePayload{Index: 4})); err != nil {
		t.Fatalf("move: %v", err)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		snap := decodeSnap(t, read(t, conn))
		if snap.Board[4] == nil || *snap.Board[4] != game.MarkX {
			t.Errorf("board[4] = %v, want X", snap.Board[4])
		}
	}
}
