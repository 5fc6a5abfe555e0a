package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/zeidlos/gridcall/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The relay is untrusted by design and carries no secrets, so any origin
	// may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter builds the relay's HTTP surface: a health probe and the
// websocket endpoint.
func NewRouter(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("relay is healthy"))
	})
	r.Get("/ws", serveWs(hub))

	return r
}

// serveWs upgrades the request and hands the connection to the hub.
func serveWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "err", err)
			return
		}

		c := &client{
			hub:  hub,
			conn: conn,
			send: make(chan *signaling.Message, 256),
		}
		hub.register <- c

		go c.writePump()
		go c.readPump()
	}
}

// ListenAndServe runs the relay until ctx is cancelled, then shuts the HTTP
// server down gracefully. The hub loop is started here.
func ListenAndServe(ctx context.Context, addr string, hub *Hub) error {
	go hub.Run()

	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(hub),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
