package game

import (
	"crypto/rand"
	"log"
	"math/big"
)

// Mark is one player's symbol.
type Mark string

const (
	MarkX Mark = "X"
	MarkO Mark = "O"
)

// Winner is the terminal outcome of a game.
type Winner string

const (
	WinnerX    Winner = "X"
	WinnerO    Winner = "O"
	WinnerDraw Winner = "draw"
)

// Snapshot is the full game state as held by the relay. Clients keep a cached
// replica that is replaced wholesale on every room-update; it is never merged
// field by field and never mutated locally.
type Snapshot struct {
	Board   [9]*Mark `json:"board"`
	Turn    Mark     `json:"turn"`
	Winner  *Winner  `json:"winner"`
	Players []string `json:"players"`
}

// NewSnapshot returns the initial state: empty board, X to move, no winner.
func NewSnapshot() Snapshot {
	return Snapshot{
		Turn:    MarkX,
		Players: []string{},
	}
}

// Clone returns a deep copy, so a stored replica and the copies handed to
// subscribers never alias.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Turn: s.Turn}
	for i, c := range s.Board {
		if c != nil {
			m := *c
			out.Board[i] = &m
		}
	}
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	out.Players = make([]string, len(s.Players))
	copy(out.Players, s.Players)
	return out
}

const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewRoomCode generates a six-character shareable room code.
func NewRoomCode() string {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			log.Panic("failed to generate room code:", err)
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code)
}
