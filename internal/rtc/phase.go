package rtc

// Phase is the negotiation state of one peer session.
//
// The happy path is Idle -> AcquiringMedia -> AwaitingPeer -> Negotiating ->
// Connected -> Closed. Failed is reachable from any phase on an unrecoverable
// error and is immediately followed by Closed.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseAcquiringMedia
	PhaseAwaitingPeer
	PhaseNegotiating
	PhaseConnected
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiringMedia:
		return "acquiring-media"
	case PhaseAwaitingPeer:
		return "awaiting-peer"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseConnected:
		return "connected"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}
