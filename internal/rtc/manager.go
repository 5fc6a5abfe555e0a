package rtc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/zeidlos/gridcall/internal/media"
	"github.com/zeidlos/gridcall/internal/signaling"
)

const (
	// media-ready is re-announced while we sit in AwaitingPeer, because the
	// relay delivers at-most-once and the first announcement can be lost.
	announceInterval = 2 * time.Second
	announceAttempts = 5
)

// Manager negotiates exactly one peer connection per session: it acquires
// local media, runs the offer/answer exchange over the signaling bus,
// trickles ICE candidates, resolves glare deterministically, and tears the
// whole thing down idempotently.
//
// Either side may race to initiate. If both send an offer before seeing the
// other's, the peer with the lexicographically smaller origin identifier
// wins: the other side rolls its own offer back and answers, so exactly one
// negotiation survives without a third coordinating role.
type Manager struct {
	bus      signaling.Bus
	provider media.Provider
	newConn  ConnFactory
	roomID   string

	phase atomic.Int32

	mu           sync.Mutex
	conn         Conn
	tracks       *media.TrackSet
	offerOut     bool // our offer is in flight, unanswered
	remoteSet    bool
	pending      []webrtc.ICECandidateInit
	cancels      []func()
	stopAnnounce chan struct{}
	closed       bool
	lastErr      error

	onPhase func(Phase)
	onError func(error)
	onTrack func(kind string)

	rxPackets atomic.Uint64
	rxBytes   atomic.Uint64
}

// NewManager creates a manager bound to one room on the given bus. The
// provider and factory are the seams for media acquisition and the underlying
// connection.
func NewManager(bus signaling.Bus, roomID string, provider media.Provider, factory ConnFactory) *Manager {
	return &Manager{
		bus:      bus,
		provider: provider,
		newConn:  factory,
		roomID:   roomID,
	}
}

// OnPhaseChange registers the phase listener. Set before Start.
func (m *Manager) OnPhaseChange(f func(Phase)) { m.onPhase = f }

// OnError registers the listener for terminal session errors. Set before
// Start.
func (m *Manager) OnError(f func(error)) { m.onError = f }

// OnRemoteTrack registers the listener invoked when a remote track arrives.
// Set before Start.
func (m *Manager) OnRemoteTrack(f func(kind string)) { m.onTrack = f }

// Phase returns the current negotiation phase.
func (m *Manager) Phase() Phase {
	return Phase(m.phase.Load())
}

// Err returns the terminal error after a Failed transition, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Tracks exposes the local track set as a non-owning reference for the media
// controller. Nil until acquisition completes.
func (m *Manager) Tracks() *media.TrackSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracks
}

// Stats reports cumulative inbound RTP packets and bytes.
func (m *Manager) Stats() (packets, bytes uint64) {
	return m.rxPackets.Load(), m.rxBytes.Load()
}

// Start acquires camera and microphone, attaches them to a fresh connection,
// announces readiness, and leaves the session awaiting the remote peer. A
// media failure is terminal for this session but must not take the game-state
// path with it; the caller keeps the room session running regardless.
func (m *Manager) Start(ctx context.Context) error {
	if !m.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseAcquiringMedia)) {
		return ErrSessionStarted
	}
	m.notifyPhase(PhaseAcquiringMedia)

	tracks, err := m.provider.GetUserMedia(ctx)
	if err != nil {
		return m.fail(err)
	}

	conn, err := m.newConn()
	if err != nil {
		tracks.Close()
		return m.fail(err)
	}

	for _, t := range []media.Track{tracks.Camera, tracks.Microphone} {
		if t == nil {
			continue
		}
		if _, err := conn.AddTrack(t.Local()); err != nil {
			conn.Close()
			tracks.Close()
			return m.fail(negotiationErr("add local track", err))
		}
	}

	conn.OnICECandidate(m.handleLocalCandidate)
	conn.OnTrack(m.handleRemoteTrack)
	conn.OnConnectionStateChange(m.handleConnectionState)

	m.mu.Lock()
	m.conn = conn
	m.tracks = tracks
	m.stopAnnounce = make(chan struct{})
	m.cancels = []func(){
		m.bus.Subscribe(signaling.EventReadyForOffer, m.handleReadyForOffer),
		m.bus.Subscribe(signaling.EventOffer, m.handleOffer),
		m.bus.Subscribe(signaling.EventAnswer, m.handleAnswer),
		m.bus.Subscribe(signaling.EventICE, m.handleCandidate),
	}
	stop := m.stopAnnounce
	m.mu.Unlock()

	m.setPhase(PhaseAwaitingPeer)
	m.announceReady()
	go m.announceLoop(stop)

	return nil
}

// SetCameraEnabled flips the camera flag; a no-op before media exists.
func (m *Manager) SetCameraEnabled(on bool) {
	if ts := m.Tracks(); ts != nil && ts.Camera != nil {
		ts.Camera.SetEnabled(on)
	}
}

// SetMicEnabled flips the microphone flag; a no-op before media exists.
func (m *Manager) SetMicEnabled(on bool) {
	if ts := m.Tracks(); ts != nil && ts.Microphone != nil {
		ts.Microphone.SetEnabled(on)
	}
}

// Close tears the session down: handlers dropped, connection closed, tracks
// stopped. Closing an already-closed session is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.stopAnnounce != nil {
		close(m.stopAnnounce)
		m.stopAnnounce = nil
	}
	cancels := m.cancels
	m.cancels = nil
	conn := m.conn
	tracks := m.tracks
	m.pending = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if tracks != nil {
		tracks.Close()
	}

	m.setPhase(PhaseClosed)
	return nil
}

// fail records a terminal error, surfaces it, and closes the session.
func (m *Manager) fail(err error) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return err
	}
	m.lastErr = err
	cb := m.onError
	m.mu.Unlock()

	m.setPhase(PhaseFailed)
	if cb != nil {
		cb(err)
	}
	m.Close()
	return err
}

func (m *Manager) setPhase(p Phase) {
	if m.phase.Swap(int32(p)) != int32(p) {
		m.notifyPhase(p)
	}
}

func (m *Manager) notifyPhase(p Phase) {
	if m.onPhase != nil {
		m.onPhase(p)
	}
}

// announceLoop re-sends media-ready a bounded number of times while no peer
// has shown up.
func (m *Manager) announceLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < announceAttempts; attempt++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.Phase() != PhaseAwaitingPeer {
				return
			}
			m.announceReady()
		}
	}
}

func (m *Manager) announceReady() {
	m.send(signaling.EventMediaReady, nil)
}

func (m *Manager) send(event string, payload any) {
	msg, err := signaling.NewMessage(event, m.roomID, payload)
	if err != nil {
		slog.Warn("drop outbound signal", "event", event, "err", err)
		return
	}
	if err := m.bus.Send(msg); err != nil {
		slog.Warn("signal not delivered", "event", event, "err", err)
	}
}

// mine filters messages to this room that did not originate here.
func (m *Manager) mine(msg *signaling.Message) bool {
	return msg.RoomID == m.roomID && msg.From != m.bus.Origin()
}

// handleReadyForOffer makes this side the offerer.
func (m *Manager) handleReadyForOffer(msg *signaling.Message) {
	if msg.RoomID != m.roomID {
		return
	}

	m.mu.Lock()
	if m.closed || m.Phase() != PhaseAwaitingPeer {
		m.mu.Unlock()
		return
	}

	offer, err := m.conn.CreateOffer(nil)
	if err != nil {
		m.mu.Unlock()
		m.fail(negotiationErr("create offer", err))
		return
	}
	if err := m.conn.SetLocalDescription(offer); err != nil {
		m.mu.Unlock()
		m.fail(negotiationErr("set local offer", err))
		return
	}
	m.offerOut = true
	m.mu.Unlock()

	m.setPhase(PhaseNegotiating)
	m.send(signaling.EventOffer, signaling.OfferPayload{Offer: offer})
}

// handleOffer makes this side the answerer, resolving glare first when our
// own offer is still unanswered.
func (m *Manager) handleOffer(msg *signaling.Message) {
	if !m.mine(msg) {
		return
	}

	var p signaling.OfferPayload
	if err := msg.DecodePayload(&p); err != nil {
		m.fail(&NegotiationError{Op: "decode offer", Err: err, Details: "malformed remote description"})
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if m.offerOut {
		if m.bus.Origin() < msg.From {
			// Our offer stands; the peer yields to the smaller origin.
			m.mu.Unlock()
			return
		}
		// Their origin is smaller: discard our offer and answer theirs.
		if err := m.conn.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			m.mu.Unlock()
			m.fail(negotiationErr("rollback local offer", err))
			return
		}
		m.offerOut = false
	}

	if err := m.conn.SetRemoteDescription(p.Offer); err != nil {
		m.mu.Unlock()
		m.fail(&NegotiationError{Op: "set remote offer", Err: err, Details: "malformed remote description"})
		return
	}
	m.remoteSet = true
	m.flushPendingLocked()

	answer, err := m.conn.CreateAnswer(nil)
	if err != nil {
		m.mu.Unlock()
		m.fail(negotiationErr("create answer", err))
		return
	}
	if err := m.conn.SetLocalDescription(answer); err != nil {
		m.mu.Unlock()
		m.fail(negotiationErr("set local answer", err))
		return
	}
	m.mu.Unlock()

	if m.Phase() == PhaseAwaitingPeer {
		m.setPhase(PhaseNegotiating)
	}
	m.send(signaling.EventAnswer, signaling.AnswerPayload{Answer: answer})
}

func (m *Manager) handleAnswer(msg *signaling.Message) {
	if !m.mine(msg) {
		return
	}

	var p signaling.AnswerPayload
	if err := msg.DecodePayload(&p); err != nil {
		m.fail(&NegotiationError{Op: "decode answer", Err: err, Details: "malformed remote description"})
		return
	}

	m.mu.Lock()
	if m.closed || !m.offerOut {
		// Stale answer, e.g. for an offer we already rolled back.
		m.mu.Unlock()
		return
	}
	if err := m.conn.SetRemoteDescription(p.Answer); err != nil {
		m.mu.Unlock()
		m.fail(&NegotiationError{Op: "set remote answer", Err: err, Details: "malformed remote description"})
		return
	}
	m.offerOut = false
	m.remoteSet = true
	m.flushPendingLocked()
	m.mu.Unlock()
}

// handleCandidate applies or buffers a trickled remote candidate. Candidate
// failures never abort the session; ICE tolerates loss.
func (m *Manager) handleCandidate(msg *signaling.Message) {
	if !m.mine(msg) {
		return
	}

	var p signaling.CandidatePayload
	if err := msg.DecodePayload(&p); err != nil {
		slog.Warn("drop malformed ICE candidate", "err", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if !m.remoteSet {
		// Buffer until a remote description exists; flushed in arrival order.
		m.pending = append(m.pending, p.Candidate)
		return
	}
	if err := m.conn.AddICECandidate(p.Candidate); err != nil {
		slog.Warn("add ICE candidate", "err", err)
	}
}

// flushPendingLocked applies buffered candidates in arrival order. Callers
// hold m.mu.
func (m *Manager) flushPendingLocked() {
	for _, cand := range m.pending {
		if err := m.conn.AddICECandidate(cand); err != nil {
			slog.Warn("add buffered ICE candidate", "err", err)
		}
	}
	m.pending = nil
}

// handleLocalCandidate forwards every locally discovered candidate
// immediately, tagged with our origin.
func (m *Manager) handleLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	m.send(signaling.EventICE, signaling.CandidatePayload{Candidate: c.ToJSON()})
}

// handleRemoteTrack marks the session connected on the first remote track
// and drains its RTP for the stats pane.
func (m *Manager) handleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if phase := m.Phase(); phase == PhaseNegotiating || phase == PhaseAwaitingPeer {
		m.setPhase(PhaseConnected)
	}
	if m.onTrack != nil {
		m.onTrack(track.Kind().String())
	}
	go m.readRemote(track)
}

func (m *Manager) readRemote(track *webrtc.TrackRemote) {
	var pkt *rtp.Packet
	var err error
	for {
		pkt, _, err = track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("remote track ended", "err", err)
			}
			return
		}
		m.rxPackets.Add(1)
		m.rxBytes.Add(uint64(pkt.MarshalSize()))
	}
}

func (m *Manager) handleConnectionState(state webrtc.PeerConnectionState) {
	if state != webrtc.PeerConnectionStateFailed {
		return
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		go m.fail(negotiationErr("peer connection", ErrConnectionFailed))
	}
}
