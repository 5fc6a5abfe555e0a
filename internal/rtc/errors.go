package rtc

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrSessionStarted   = errors.New("session already started")
)

// NegotiationError reports an unrecoverable failure of the offer/answer
// exchange or of the connection itself. It is terminal for the media session
// but never for the game-state path.
type NegotiationError struct {
	Op      string
	Err     error
	Details string
}

func (e *NegotiationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func negotiationErr(op string, err error) *NegotiationError {
	return &NegotiationError{Op: op, Err: err}
}
