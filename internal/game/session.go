package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zeidlos/gridcall/internal/signaling"
)

// Session owns room membership and the replicated game-state snapshot. It
// translates user intents into relay messages and room-update broadcasts into
// a consistent local replica. The relay is the only authority: a move is
// reflected locally only once the relay echoes it back, so a rejected move
// (occupied cell, wrong turn, finished game) can never leave the replica
// diverged.
type Session struct {
	bus signaling.Bus

	mu           sync.Mutex
	roomID       string
	joined       bool
	replica      Snapshot
	onSnapshot   func(Snapshot)
	ack          chan Snapshot
	joinErr      chan error
	cancelUpdate func()
	cancelError  func()
}

// NewSession creates a session bound to a signaling bus. No room is joined
// until Join is called.
func NewSession(bus signaling.Bus) *Session {
	return &Session{
		bus:     bus,
		replica: NewSnapshot(),
	}
}

// Join requests membership in the room identified by roomCode and blocks
// until the relay acknowledges with the initial snapshot, the relay rejects
// the request, or ctx expires.
//
// Join is idempotent for the current room. Joining a different room first
// leaves the old one: a leave intent is emitted and all local state from it
// is discarded, so no residue of the previous room can bleed into the next.
func (s *Session) Join(ctx context.Context, roomCode string) (Snapshot, error) {
	if roomCode == "" {
		return Snapshot{}, &JoinError{Err: fmt.Errorf("empty room code")}
	}

	s.mu.Lock()
	if s.joined && s.roomID == roomCode {
		snap := s.replica.Clone()
		s.mu.Unlock()
		return snap, nil
	}
	if s.joined {
		s.leaveLocked()
	}

	s.roomID = roomCode
	s.replica = NewSnapshot()
	ack := make(chan Snapshot, 1)
	joinErr := make(chan error, 1)
	s.ack = ack
	s.joinErr = joinErr
	s.cancelUpdate = s.bus.Subscribe(signaling.EventRoomUpdate, s.handleUpdate)
	s.cancelError = s.bus.Subscribe(signaling.EventRoomError, s.handleError)
	s.mu.Unlock()

	msg, err := signaling.NewMessage(signaling.EventJoinRoom, roomCode, nil)
	if err != nil {
		s.abortJoin()
		return Snapshot{}, &JoinError{Room: roomCode, Err: err}
	}
	if err := s.bus.Send(msg); err != nil {
		s.abortJoin()
		return Snapshot{}, &JoinError{Room: roomCode, Err: fmt.Errorf("%w: %v", ErrRelayUnreachable, err)}
	}

	select {
	case snap := <-ack:
		s.mu.Lock()
		s.joined = true
		s.joinErr = nil
		s.mu.Unlock()
		return snap, nil
	case err := <-joinErr:
		s.abortJoin()
		return Snapshot{}, err
	case <-ctx.Done():
		s.abortJoin()
		return Snapshot{}, &JoinError{Room: roomCode, Err: fmt.Errorf("%w: %v", ErrRelayUnreachable, ctx.Err())}
	}
}

// OnSnapshot registers the listener invoked with each replacement snapshot.
// Re-registration replaces the previous handler; exactly one is live at a
// time.
func (s *Session) OnSnapshot(h func(Snapshot)) {
	s.mu.Lock()
	s.onSnapshot = h
	s.mu.Unlock()
}

// Snapshot returns a copy of the current replica.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replica.Clone()
}

// Room returns the joined room code, or "" when no room is joined.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return ""
	}
	return s.roomID
}

// SubmitMove emits a move intent for the given cell. It is a no-op when no
// room is joined and never updates the replica optimistically.
func (s *Session) SubmitMove(index int) error {
	if index < 0 || index > 8 {
		return fmt.Errorf("%w: %d", ErrBadIndex, index)
	}

	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil
	}
	roomID := s.roomID
	s.mu.Unlock()

	msg, err := signaling.NewMessage(signaling.EventMakeMove, roomID, signaling.MovePayload{Index: index})
	if err != nil {
		return err
	}
	return s.bus.Send(msg)
}

// Restart emits a restart intent. Like SubmitMove it is a no-op without a
// room and does not touch the replica.
func (s *Session) Restart() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil
	}
	roomID := s.roomID
	s.mu.Unlock()

	msg, err := signaling.NewMessage(signaling.EventRestart, roomID, nil)
	if err != nil {
		return err
	}
	return s.bus.Send(msg)
}

// Close leaves the current room and unregisters all handlers. Safe to call
// when no room is joined, and safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	s.leaveLocked()
	s.onSnapshot = nil
	s.mu.Unlock()
}

func (s *Session) handleUpdate(msg *signaling.Message) {
	s.mu.Lock()
	if msg.RoomID != s.roomID {
		// Stale broadcast from a room we already left.
		s.mu.Unlock()
		return
	}

	snap := NewSnapshot()
	if msg.HasPayload() {
		if err := msg.DecodePayload(&snap); err != nil {
			s.mu.Unlock()
			slog.Warn("dropped malformed room update", "room", msg.RoomID, "err", err)
			return
		}
	}

	// Wholesale replacement: the replica is exactly the last payload.
	s.replica = snap
	handler := s.onSnapshot
	if s.ack != nil {
		select {
		case s.ack <- snap.Clone():
		default:
		}
		s.ack = nil
	}
	s.mu.Unlock()

	if handler != nil {
		handler(snap.Clone())
	}
}

func (s *Session) handleError(msg *signaling.Message) {
	var p signaling.ErrorPayload
	if err := msg.DecodePayload(&p); err != nil {
		slog.Warn("dropped malformed room error", "err", err)
		return
	}

	s.mu.Lock()
	pending := s.joinErr
	s.joinErr = nil
	roomID := s.roomID
	s.mu.Unlock()

	if pending != nil {
		pending <- &JoinError{Room: roomID, Err: mapErrorCode(p)}
		return
	}
	slog.Warn("relay rejected request", "room", roomID, "code", p.Code, "err", p.Message)
}

func mapErrorCode(p signaling.ErrorPayload) error {
	switch p.Code {
	case signaling.ErrCodeRoomFull:
		return ErrRoomFull
	case signaling.ErrCodeNotInRoom:
		return ErrNotJoined
	default:
		return fmt.Errorf("%s: %s", p.Code, p.Message)
	}
}

// abortJoin rolls back a join attempt that did not complete.
func (s *Session) abortJoin() {
	s.mu.Lock()
	s.leaveLocked()
	s.mu.Unlock()
}

// leaveLocked discards all per-room state and notifies the relay when a room
// was actually joined. Callers hold s.mu.
func (s *Session) leaveLocked() {
	if s.cancelUpdate != nil {
		s.cancelUpdate()
		s.cancelUpdate = nil
	}
	if s.cancelError != nil {
		s.cancelError()
		s.cancelError = nil
	}
	if s.joined {
		if msg, err := signaling.NewMessage(signaling.EventLeaveRoom, s.roomID, nil); err == nil {
			if err := s.bus.Send(msg); err != nil {
				slog.Warn("leave intent not delivered", "room", s.roomID, "err", err)
			}
		}
	}
	s.joined = false
	s.roomID = ""
	s.replica = NewSnapshot()
	s.ack = nil
	s.joinErr = nil
}
