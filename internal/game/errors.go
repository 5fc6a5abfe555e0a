package game

import (
	"errors"
	"fmt"
)

var (
	ErrRelayUnreachable = errors.New("relay unreachable")
	ErrRoomFull         = errors.New("room is full")
	ErrNotJoined        = errors.New("no room joined")
	ErrBadIndex         = errors.New("cell index out of range")
)

// JoinError reports a failed attempt to enter a room.
type JoinError struct {
	Room string
	Err  error
}

func (e *JoinError) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("join room %s: %v", e.Room, e.Err)
	}
	return fmt.Sprintf("join room: %v", e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}
