package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeidlos/gridcall/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB covers WebRTC SDP.
	maxMessageSize = 64 * 1024
)

// client wraps one websocket connection on the relay side. The hub goroutine
// owns roomID and origin after registration; the pumps never touch them.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	origin string
	roomID string
	send   chan *signaling.Message
}

// readPump pumps messages from the websocket into the hub. It is the only
// reader on the connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("relay read", "err", err)
			}
			return
		}
		c.hub.inbound <- inbound{client: c, msg: &msg}
	}
}

// writePump pumps hub messages out to the websocket and keeps the connection
// alive with pings. It is the only writer on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("relay write", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues a message for the client, dropping it when the client is too
// slow to drain its buffer. Delivery is at-most-once by contract.
func (c *client) deliver(msg *signaling.Message) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("drop message for slow client", "event", msg.Event, "room", msg.RoomID)
	}
}
