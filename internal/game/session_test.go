package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zeidlos/gridcall/internal/signaling"
)

// fakeBus records outbound messages and lets the test play the relay by
// dispatching responses, optionally from inside Send.
type fakeBus struct {
	signaling.Dispatcher

	mu     sync.Mutex
	sent   []*signaling.Message
	onSend func(*signaling.Message)
}

func (b *fakeBus) Origin() string { return "origin-local" }

func (b *fakeBus) Send(msg *signaling.Message) error {
	b.mu.Lock()
	b.sent = append(b.sent, msg)
	onSend := b.onSend
	b.mu.Unlock()
	if onSend != nil {
		onSend(msg)
	}
	return nil
}

func (b *fakeBus) sentEvents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := make([]string, len(b.sent))
	for i, m := range b.sent {
		events[i] = m.Event
	}
	return events
}

// ackJoins makes the bus answer every join-room with a room-update carrying
// the given snapshot.
func (b *fakeBus) ackJoins(snap Snapshot) {
	b.onSend = func(msg *signaling.Message) {
		if msg.Event != signaling.EventJoinRoom {
			return
		}
		update, err := signaling.NewMessage(signaling.EventRoomUpdate, msg.RoomID, snap)
		if err != nil {
			panic(err)
		}
		b.Dispatch(update)
	}
}

func joinedSession(t *testing.T, bus *fakeBus) *Session {
	t.Helper()
	snap := NewSnapshot()
	snap.Players = []string{"origin-local"}
	bus.ackJoins(snap)

	s := NewSession(bus)
	if _, err := s.Join(context.Background(), "ABC123"); err != nil {
		t.Fatalf("join: %v", err)
	}
	return s
}

func TestJoinDeliversInitialSnapshot(t *testing.T) {
	bus := &fakeBus{}
	snap := NewSnapshot()
	snap.Players = []string{"origin-local"}
	bus.ackJoins(snap)

	s := NewSession(bus)
	got, err := s.Join(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(got.Players) != 1 || got.Players[0] != "origin-local" {
		t.Errorf("players = %v, want [origin-local]", got.Players)
	}
	if got.Turn != MarkX {
		t.Errorf("turn = %q, want X", got.Turn)
	}
	if s.Room() != "ABC123" {
		t.Errorf("room = %q, want ABC123", s.Room())
	}
}

func TestJoinIdempotentForSameRoom(t *testing.T) {
	bus := &fakeBus{}
	s := joinedSession(t, bus)

	if _, err := s.Join(context.Background(), "ABC123"); err != nil {
		t.Fatalf("second join: %v", err)
	}

	joins := 0
	for _, e := range bus.sentEvents() {
		if e == signaling.EventJoinRoom {
			joins++
		}
	}
	if joins != 1 {
		t.Errorf("join-room sent %d times, want 1", joins)
	}
}

func TestJoinDifferentRoomLeavesFirst(t *testing.T) {
	bus := &fakeBus{}
	s := joinedSession(t, bus)

	// Put a mark on the board of the first room.
	first := NewSnapshot()
	first.Players = []string{"origin-local", "origin-remote"}
	x := MarkX
	first.Board[0] = &x
	update, _ := signaling.NewMessage(signaling.EventRoomUpdate, "ABC123", first)
	bus.Dispatch(update)

	if _, err := s.Join(context.Background(), "ROOMB1"); err != nil {
		t.Fatalf("join second room: %v", err)
	}

	// The first room was left explicitly, not just abandoned.
	bus.mu.Lock()
	var leave *signaling.Message
	for _, m := range bus.sent {
		if m.Event == signaling.EventLeaveRoom {
			leave = m
		}
	}
	bus.mu.Unlock()
	if leave == nil {
		t.Fatal("no leave-room intent before joining the second room")
	}
	if leave.RoomID != "ABC123" {
		t.Errorf("leave-room for %q, want ABC123", leave.RoomID)
	}

	// No residue from the first room in the replica.
	if s.Room() != "ROOMB1" {
		t.Errorf("room = %q, want ROOMB1", s.Room())
	}
	if s.Snapshot().Board[0] != nil {
		t.Error("board state from the first room survived the switch")
	}
}

func TestJoinRejectedRoomFull(t *testing.T) {
	bus := &fakeBus{}
	bus.onSend = func(msg *signaling.Message) {
		if msg.Event != signaling.EventJoinRoom {
			return
		}
		reject, err := signaling.NewMessage(signaling.EventRoomError, msg.RoomID, signaling.ErrorPayload{
			Code:    signaling.ErrCodeRoomFull,
			Message: "room already has two players",
		})
		if err != nil {
			panic(err)
		}
		bus.Dispatch(reject)
	}

	s := NewSession(bus)
	_, err := s.Join(context.Background(), "ABC123")
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("join error = %v, want ErrRoomFull", err)
	}
	var je *JoinError
	if !errors.As(err, &je) {
		t.Errorf("error type = %T, want *JoinError", err)
	}
	if s.Room() != "" {
		t.Errorf("room = %q after rejected join, want empty", s.Room())
	}
}

func TestMapErrorCode(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{signaling.ErrCodeRoomFull, ErrRoomFull},
		{signaling.ErrCodeNotInRoom, ErrNotJoined},
	}
	for _, tt := range tests {
		err := mapErrorCode(signaling.ErrorPayload{Code: tt.code, Message: "rejected"})
		if !errors.Is(err, tt.want) {
			t.Errorf("code %q mapped to %v, want %v", tt.code, err, tt.want)
		}
	}

	err := mapErrorCode(signaling.ErrorPayload{Code: "something-new", Message: "rejected"})
	if err == nil || err.Error() != "something-new: rejected" {
		t.Errorf("unknown code mapped to %v", err)
	}
}

func TestJoinTimesOutWithoutAck(t *testing.T) {
	bus := &fakeBus{}
	s := NewSession(bus)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Join(ctx, "ABC123")
	if !errors.Is(err, ErrRelayUnreachable) {
		t.Fatalf("join error = %v, want ErrRelayUnreachable", err)
	}
}

func TestSnapshotReplacedWholesale(t *testing.T) {
	bus := &fakeBus{}
	s := joinedSession(t, bus)

	var got []Snapshot
	s.OnSnapshot(func(snap Snapshot) { got = append(got, snap) })

	first := NewSnapshot()
	first.Players = []string{"origin-local", "origin-remote"}
	x := MarkX
	first.Board[4] = &x
	first.Turn = MarkO
	update, _ := signaling.NewMessage(signaling.EventRoomUpdate, "ABC123", first)
	bus.Dispatch(update)

	// A later update with an empty board must fully erase the earlier one.
	second := NewSnapshot()
	second.Players = []string{"origin-local", "origin-remote"}
	update, _ = signaling.NewMessage(signaling.EventRoomUpdate, "ABC123", second)
	bus.Dispatch(update)

	if len(got) != 2 {
		t.Fatalf("handler ran %d times, want 2", len(got))
	}
	if got[0].Board[4] == nil || *got[0].Board[4] != MarkX {
		t.Errorf("first update board[4] = %v, want X", got[0].Board[4])
	}
	if s.Snapshot().Board[4] != nil {
		t.Error("stale cell survived a full snapshot replacement")
	}
}

func TestIgnoresUpdatesForOtherRooms(t *testing.T) {
	bus := &fakeBus{}
	s := joinedSession(t, bus)

	other := NewSnapshot()
	x := MarkX
	other.Board[0] = &x
	update, _ := signaling.NewMessage(signaling.EventRoomUpdate, "OTHER1", other)
	bus.Dispatch(update)

	if s.Snapshot().Board[0] != nil {
		t.Error("replica absorbed an update for a different room")
	}
}

func TestSubmitMoveSendsIntentWithoutOptimism(t *testing.T) {
	bus := &fakeBus{}
	s := joinedSession(t, bus)

	if err := s.SubmitMove(4); err != nil {
		t.Fatalf("submit: %v", err)
	}

	bus.mu.Lock()
	last := bus.sent[len(bus.sent)-1]
	bus.mu.Unlock()
	if last.Event != signaling.EventMakeMove {
		t.Fatalf("last event = %q, want make-move", last.Event)
	}
	var p signaling.MovePayload
	if err := last.DecodePayload(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Index != 4 {
		t.Errorf("index = %d, want 4", p.Index)
	}

	// The replica only moves when the relay broadcasts.
	if s.Snapshot().Board[4] != nil {
		t.Error("move applied optimistically")
	}
}

func TestSubmitMoveValidation(t *testing.T) {
	bus := &fakeBus{}
	s := joinedSession(t, bus)

	if err := s.SubmitMove(9); !errors.Is(err, ErrBadIndex) {
		t.Errorf("index 9 error = %v, want ErrBadIndex", err)
	}
	if err := s.SubmitMove(-1); !errors.Is(err, ErrBadIndex) {
		t.Errorf("index -1 error = %v, want ErrBadIndex", err)
	}
}

func TestSubmitMoveBeforeJoinIsNoop(t *testing.T) {
	bus := &fakeBus{}
	s := NewSession(bus)

	if err := s.SubmitMove(0); err != nil {
		t.Fatalf("submit before join: %v", err)
	}
	if len(bus.sentEvents()) != 0 {
		t.Errorf("messages sent before join: %v", bus.sentEvents())
	}
}

func TestCloseLeavesRoomOnce(t *testing.T) {
	bus := &fakeBus{}
	s := joinedSession(t, bus)

	s.Close()
	s.Close()

	leaves := 0
	for _, e := range bus.sentEvents() {
		if e == signaling.EventLeaveRoom {
			leaves++
		}
	}
	if leaves != 1 {
		t.Errorf("leave-room sent %d times, want 1", leaves)
	}
	if s.Room() != "" {
		t.Errorf("room = %q after close, want empty", s.Room())
	}
}
