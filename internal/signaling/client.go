package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/zeidlos/gridcall/internal/dns"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	reconnectBase   = 500 * time.Millisecond
	reconnectTries  = 6
	reconnectWindow = 45 * time.Second
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling client closed")

// TransportError wraps failures of the relay connection itself.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("signaling %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client manages the WebSocket connection to the signaling relay. It owns one
// read pump and one write pump; inbound messages are dispatched sequentially
// in delivery order, so subscribers never observe client-side reordering.
//
// A dropped connection is re-dialed with exponential backoff, invisibly to
// subscribers except as a gap in delivery. No session state lives here, so
// nothing is reset by a reconnect.
type Client struct {
	Dispatcher

	serverURL string
	origin    string

	mu       sync.Mutex
	conn     *websocket.Conn
	outgoing chan *Message
	done     chan struct{}
	closed   bool
}

// NewClient creates a client for the given relay URL. The origin identifier
// stamped on outbound messages is unique per client instance.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		origin:    uuid.NewString(),
		outgoing:  make(chan *Message, 16),
		done:      make(chan struct{}),
	}
}

// Origin returns the local origin identifier.
func (c *Client) Origin() string {
	return c.origin
}

// Connect establishes the WebSocket connection and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	go c.readPump()
	go c.writePump()

	return nil
}

func (c *Client) dial(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %w", err)
	}

	// Custom dialer with public-DNS fallback; captive or broken resolvers
	// are common on the networks this tool gets used from.
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			resolved, err := dns.Lookup(host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(resolved, port))
		},
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	return nil
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump reads messages from the relay and dispatches them. On a read
// error it attempts a transparent reconnect before giving up.
func (c *Client) readPump() {
	for {
		conn := c.currentConn()

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if c.isClosed() {
				return
			}
			slog.Info("relay connection lost, reconnecting", "err", err)
			if err := c.reconnect(); err != nil {
				slog.Error("relay reconnect failed", "err", err)
				c.Close()
				return
			}
			continue
		}

		c.Dispatch(&msg)
	}
}

// reconnect re-dials the relay with exponential backoff.
func (c *Client) reconnect() error {
	c.currentConn().Close()

	ctx, cancel := context.WithTimeout(context.Background(), reconnectWindow)
	defer cancel()

	backoff := retry.WithMaxRetries(reconnectTries, retry.NewExponential(reconnectBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if c.isClosed() {
			return ErrClosed
		}
		if err := c.dial(ctx); err != nil {
			return retry.RetryableError(err)
		}
		slog.Info("relay connection restored")
		return nil
	})
}

// writePump writes outbound messages and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.currentConn().Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			conn := c.currentConn()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(message); err != nil {
				// Delivery is at-most-once; the read pump drives the
				// reconnect, this message is simply lost.
				slog.Warn("dropped outbound message", "event", message.Event, "err", err)
			}

		case <-ticker.C:
			conn := c.currentConn()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil && c.isClosed() {
				return
			}

		case <-c.done:
			conn := c.currentConn()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send enqueues a message to the relay, stamping the local origin on it if
// the caller did not set one. Sending on a closed client always returns
// ErrClosed; the closed check must run before the enqueue, a two-way select
// would pick the buffered channel at random even after Close.
func (c *Client) Send(msg *Message) error {
	if msg.From == "" {
		msg.From = c.origin
	}
	if c.isClosed() {
		return &TransportError{Op: "send", Err: ErrClosed}
	}
	select {
	case <-c.done:
		return &TransportError{Op: "send", Err: ErrClosed}
	case c.outgoing <- msg:
		return nil
	}
}

// Close shuts the connection down. Closing an already-closed client is a
// no-op.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
}
