package relay

import (
	"log/slog"

	"github.com/zeidlos/gridcall/internal/game"
	"github.com/zeidlos/gridcall/internal/signaling"
)

// room holds one authoritative game plus the media readiness of its members.
// members keeps join order; members[0] becomes the designated offerer.
type room struct {
	id      string
	members []*client
	marks   map[string]game.Mark
	ready   map[string]bool
	state   game.Snapshot
}

type inbound struct {
	client *client
	msg    *signaling.Message
}

// Hub owns all rooms. A single Run goroutine processes registration,
// unregistration, and every inbound message, so room state needs no locking.
type Hub struct {
	rooms      map[string]*room
	register   chan *client
	unregister chan *client
	inbound    chan inbound
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*room),
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inbound),
	}
}

// Run is the hub's main processing loop. It must run in its own goroutine
// before any connection is accepted.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			slog.Debug("client registered", "addr", c.conn.RemoteAddr())

		case c := <-h.unregister:
			slog.Debug("client unregistered", "addr", c.conn.RemoteAddr())
			h.dropClient(c)
			close(c.send)

		case in := <-h.inbound:
			h.route(in.client, in.msg)
		}
	}
}

func (h *Hub) route(c *client, msg *signaling.Message) {
	switch msg.Event {
	case signaling.EventJoinRoom:
		h.handleJoin(c, msg)
	case signaling.EventLeaveRoom:
		h.dropClient(c)
	case signaling.EventMakeMove:
		h.handleMove(c, msg)
	case signaling.EventRestart:
		h.handleRestart(c)
	case signaling.EventMediaReady:
		h.handleMediaReady(c)
	case signaling.EventOffer, signaling.EventAnswer, signaling.EventICE:
		h.forward(c, msg)
	default:
		slog.Warn("unknown event", "event", msg.Event)
	}
}

// handleJoin puts the client into the named room, creating it on first join.
// The response to a join, success or not, is the broadcast room-update; a
// rejected join gets a room-error instead.
func (h *Hub) handleJoin(c *client, msg *signaling.Message) {
	if msg.RoomID == "" || msg.From == "" {
		h.sendError(c, msg.RoomID, signaling.ErrCodeBadRequest, "join requires a room and an origin")
		return
	}

	r, ok := h.rooms[msg.RoomID]
	if !ok {
		r = &room{
			id:    msg.RoomID,
			marks: make(map[string]game.Mark),
			ready: make(map[string]bool),
			state: game.NewSnapshot(),
		}
		h.rooms[r.id] = r
		slog.Info("room created", "room", r.id)
	}

	// Rejoining the same room just replays the snapshot.
	for _, m := range r.members {
		if m == c {
			h.broadcastState(r)
			return
		}
	}

	if len(r.members) >= 2 {
		slog.Info("join rejected, room full", "room", r.id)
		h.sendError(c, r.id, signaling.ErrCodeRoomFull, "room already has two players")
		return
	}

	c.origin = msg.From
	c.roomID = r.id
	r.members = append(r.members, c)
	r.marks[c.origin] = freeMark(r)
	r.state.Players = append(r.state.Players, c.origin)

	slog.Info("player joined", "room", r.id, "mark", r.marks[c.origin], "players", len(r.members))
	h.broadcastState(r)
}

// freeMark assigns X to the first seat and O to the second, reusing whichever
// mark a departed player freed up.
func freeMark(r *room) game.Mark {
	for _, m := range r.members {
		if r.marks[m.origin] == game.MarkX {
			return game.MarkO
		}
	}
	return game.MarkX
}

func (h *Hub) handleMove(c *client, msg *signaling.Message) {
	r, ok := h.memberRoom(c)
	if !ok {
		return
	}

	var p signaling.MovePayload
	if err := msg.DecodePayload(&p); err != nil {
		h.sendError(c, r.id, signaling.ErrCodeBadRequest, "malformed move")
		return
	}

	if err := applyMove(&r.state, r.marks[c.origin], p.Index); err != nil {
		h.sendError(c, r.id, signaling.ErrCodeInvalidMove, err.Error())
		return
	}

	h.broadcastState(r)
}

// handleRestart resets the board while keeping both seats. Restart is always
// legal, even mid-game.
func (h *Hub) handleRestart(c *client) {
	r, ok := h.memberRoom(c)
	if !ok {
		return
	}

	fresh := game.NewSnapshot()
	fresh.Players = r.state.Players
	r.state = fresh

	slog.Info("game restarted", "room", r.id)
	h.broadcastState(r)
}

// handleMediaReady records the announcement and, once both members have
// announced, tells the first joiner to open the offer. Repeat announcements
// re-trigger the nudge, which covers a lost delivery.
func (h *Hub) handleMediaReady(c *client) {
	r, ok := h.memberRoom(c)
	if !ok {
		return
	}

	r.ready[c.origin] = true
	if len(r.members) < 2 {
		return
	}
	for _, m := range r.members {
		if !r.ready[m.origin] {
			return
		}
	}

	nudge, err := signaling.NewMessage(signaling.EventReadyForOffer, r.id, nil)
	if err != nil {
		return
	}
	r.members[0].deliver(nudge)
}

// forward relays a negotiation message to the other member of the room. The
// relay never reflects a message back to its sender.
func (h *Hub) forward(c *client, msg *signaling.Message) {
	r, ok := h.memberRoom(c)
	if !ok {
		return
	}

	for _, m := range r.members {
		if m != c {
			m.deliver(msg)
		}
	}
}

// dropClient removes the client from its room, hands the freed seat back, and
// tells the remaining player. Empty rooms are deleted.
func (h *Hub) dropClient(c *client) {
	if c.roomID == "" {
		return
	}
	r, ok := h.rooms[c.roomID]
	c.roomID = ""
	if !ok {
		return
	}

	for i, m := range r.members {
		if m == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	delete(r.marks, c.origin)
	delete(r.ready, c.origin)
	for i, p := range r.state.Players {
		if p == c.origin {
			r.state.Players = append(r.state.Players[:i], r.state.Players[i+1:]...)
			break
		}
	}

	if len(r.members) == 0 {
		delete(h.rooms, r.id)
		slog.Info("room deleted", "room", r.id)
		return
	}

	slog.Info("player left", "room", r.id)
	h.broadcastState(r)
}

func (h *Hub) memberRoom(c *client) (*room, bool) {
	if c.roomID == "" {
		h.sendError(c, "", signaling.ErrCodeNotInRoom, "join a room first")
		return nil, false
	}
	r, ok := h.rooms[c.roomID]
	if !ok {
		h.sendError(c, c.roomID, signaling.ErrCodeNotInRoom, "room no longer exists")
		return nil, false
	}
	return r, true
}

// broadcastState sends the full authoritative snapshot to every member.
// Clients replace their replica wholesale, so the payload is always complete.
func (h *Hub) broadcastState(r *room) {
	msg, err := signaling.NewMessage(signaling.EventRoomUpdate, r.id, r.state)
	if err != nil {
		slog.Error("marshal room state", "room", r.id, "err", err)
		return
	}
	for _, m := range r.members {
		m.deliver(msg)
	}
}

func (h *Hub) sendError(c *client, roomID, code, text string) {
	msg, err := signaling.NewMessage(signaling.EventRoomError, roomID, signaling.ErrorPayload{
		Code:    code,
		Message: text,
	})
	if err != nil {
		return
	}
	c.deliver(msg)
}
