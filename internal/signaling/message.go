package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Event names carried by every relay message. Game intents and WebRTC
// negotiation share one channel; receivers demultiplex on the event name.
const (
	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"
	EventMakeMove  = "make-move"
	EventRestart   = "restart-game"

	EventRoomUpdate = "room-update"
	EventRoomError  = "room-error"

	EventMediaReady    = "media-ready"
	EventReadyForOffer = "ready-for-offer"
	EventOffer         = "webrtc-offer"
	EventAnswer        = "webrtc-answer"
	EventICE           = "webrtc-ice"
)

// Message is the envelope for all traffic between a client and the relay.
// From carries the origin identifier of the sending peer and is used to
// reject self-originated echoes.
type Message struct {
	Event   string          `json:"event"`
	RoomID  string          `json:"roomId,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope with the payload marshaled in place. A nil
// payload produces an envelope without one.
func NewMessage(event, roomID string, payload any) (*Message, error) {
	msg := &Message{Event: event, RoomID: roomID}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg.Payload = raw
	return msg, nil
}

// DecodePayload unmarshals the message payload into the provided struct.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Event)
	}
	return json.Unmarshal(m.Payload, v)
}

// HasPayload reports whether the envelope carries a non-null payload.
func (m *Message) HasPayload() bool {
	return len(m.Payload) > 0 && string(m.Payload) != "null"
}

// MovePayload is a move intent for a single board cell.
type MovePayload struct {
	Index int `json:"index"`
}

// OfferPayload carries an SDP offer.
type OfferPayload struct {
	Offer webrtc.SessionDescription `json:"offer"`
}

// AnswerPayload carries an SDP answer.
type AnswerPayload struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

// CandidatePayload carries one trickled ICE candidate.
type CandidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// ErrorPayload is sent by the relay when a request is rejected.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Relay error codes.
const (
	ErrCodeRoomFull    = "room-full"
	ErrCodeNotInRoom   = "not-in-room"
	ErrCodeInvalidMove = "invalid-move"
	ErrCodeBadRequest  = "bad-request"
)
