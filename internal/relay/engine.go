package relay

import (
	"errors"

	"github.com/zeidlos/gridcall/internal/game"
)

// The relay is the sole game authority: clients only send intents, and every
// accepted intent produces a fresh full snapshot broadcast to the room.

var (
	errBadIndex    = errors.New("cell index out of range")
	errCellTaken   = errors.New("cell already taken")
	errNotYourTurn = errors.New("not your turn")
	errGameOver    = errors.New("game already decided")
)

var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// applyMove validates a move intent against the authoritative snapshot and
// mutates it in place on success.
func applyMove(s *game.Snapshot, mark game.Mark, index int) error {
	if index < 0 || index > 8 {
		return errBadIndex
	}
	if s.Winner != nil {
		return errGameOver
	}
	if s.Turn != mark {
		return errNotYourTurn
	}
	if s.Board[index] != nil {
		return errCellTaken
	}

	m := mark
	s.Board[index] = &m

	if w := computeWinner(s.Board); w != nil {
		s.Winner = w
	} else {
		s.Turn = otherMark(mark)
	}
	return nil
}

// computeWinner returns the outcome for a board, or nil while the game is
// still open.
func computeWinner(board [9]*game.Mark) *game.Winner {
	for _, line := range winningLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != nil && b != nil && c != nil && *a == *b && *b == *c {
			w := game.Winner(*a)
			return &w
		}
	}
	for _, cell := range board {
		if cell == nil {
			return nil
		}
	}
	w := game.WinnerDraw
	return &w
}

func otherMark(m game.Mark) game.Mark {
	if m == game.MarkX {
		return game.MarkO
	}
	return game.MarkX
}
