package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zeidlos/gridcall/internal/game"
	"github.com/zeidlos/gridcall/internal/media"
	"github.com/zeidlos/gridcall/internal/rtc"
	"github.com/zeidlos/gridcall/internal/signaling"
)

// ErrAttached is returned by Attach while a previous visit is still up. The
// caller must Detach first; silently re-attaching would leak the old peer
// connection, its tracks, and its announce loop.
var ErrAttached = errors.New("session already attached")

// Transport is the signaling surface the coordinator needs: the Bus used by
// the game and peer layers plus the ability to shut the connection down.
// *signaling.Client implements it.
type Transport interface {
	signaling.Bus
	Close()
}

// Coordinator owns the lifecycle of one room visit: it joins the room over
// the signaling client, starts the peer media session, and exposes the three
// surfaces the UI drives. Joining is fail-fast; a media failure after a
// successful join degrades the visit to game-only instead of aborting it.
type Coordinator struct {
	client   Transport
	provider media.Provider
	factory  rtc.ConnFactory

	game  *game.Session
	peer  *rtc.Manager
	media *media.Controller

	onSnapshot func(game.Snapshot)
	onPhase    func(rtc.Phase)
	onPeerErr  func(error)

	detached bool
}

// New builds a coordinator over an already-connected signaling client. The
// provider and factory are passed through to the peer manager.
func New(client Transport, provider media.Provider, factory rtc.ConnFactory) *Coordinator {
	return &Coordinator{
		client:   client,
		provider: provider,
		factory:  factory,
	}
}

// OnSnapshot registers the listener for replicated game state. Set before
// Attach.
func (c *Coordinator) OnSnapshot(f func(game.Snapshot)) { c.onSnapshot = f }

// OnPhaseChange registers the listener for peer session phases. Set before
// Attach.
func (c *Coordinator) OnPhaseChange(f func(rtc.Phase)) { c.onPhase = f }

// OnPeerError registers the listener for terminal media-session errors. Set
// before Attach.
func (c *Coordinator) OnPeerError(f func(error)) { c.onPeerErr = f }

// Attach joins roomCode and brings up the media session. The join is
// fail-fast: its error aborts the whole visit, and attaching while an earlier
// visit has not been detached fails with ErrAttached. A media or negotiation
// failure after the join is reported through OnPeerError and leaves the
// game session running.
func (c *Coordinator) Attach(ctx context.Context, roomCode string) error {
	if c.game != nil && !c.detached {
		return ErrAttached
	}

	c.game = game.NewSession(c.client)
	if c.onSnapshot != nil {
		c.game.OnSnapshot(c.onSnapshot)
	}
	if _, err := c.game.Join(ctx, roomCode); err != nil {
		c.game.Close()
		// A failed join leaves nothing attached; the caller may retry.
		c.game = nil
		return err
	}
	c.detached = false

	c.peer = rtc.NewManager(c.client, roomCode, c.provider, c.factory)
	if c.onPhase != nil {
		c.peer.OnPhaseChange(c.onPhase)
	}
	if c.onPeerErr != nil {
		c.peer.OnError(c.onPeerErr)
	}
	c.media = media.NewController(c.peer)

	if err := c.peer.Start(ctx); err != nil {
		// The game replica keeps working without a call.
		slog.Warn("media session unavailable", "room", roomCode, "err", err)
	}

	return nil
}

// Game returns the room session; nil before Attach.
func (c *Coordinator) Game() *game.Session { return c.game }

// Media returns the mute/camera facade; nil before Attach.
func (c *Coordinator) Media() *media.Controller { return c.media }

// Phase reports the peer session phase, PhaseIdle before Attach.
func (c *Coordinator) Phase() rtc.Phase {
	if c.peer == nil {
		return rtc.PhaseIdle
	}
	return c.peer.Phase()
}

// Stats reports cumulative inbound RTP packets and bytes from the peer.
func (c *Coordinator) Stats() (packets, bytes uint64) {
	if c.peer == nil {
		return 0, 0
	}
	return c.peer.Stats()
}

// Detach tears everything down in reverse order. Detaching twice is a no-op,
// as is detaching a coordinator that never attached.
func (c *Coordinator) Detach() {
	if c.detached {
		return
	}
	c.detached = true

	if c.peer != nil {
		c.peer.Close()
	}
	if c.game != nil {
		c.game.Close()
	}
	c.client.Close()
}
