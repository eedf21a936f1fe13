package ws

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	disconnectWait = 5 * time.Second
)

// Options tunes per-connection transport behavior.
type Options struct {
	MaxMessageSize int64
	SinkBufferSize int
}

// Handler upgrades HTTP requests to WebSocket connections and runs the
// read/write pumps. Each accepted connection is registered with the
// router before any frame is read, and its disconnect is always routed
// through the cascade, whatever ends the pumps.
type Handler struct {
	log      *slog.Logger
	router   *runtime.Router
	verifier *auth.Verifier // nil disables handshake auth
	monitor  *observability.Monitor
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger, router *runtime.Router,
	verifier *auth.Verifier, monitor *observability.Monitor, opts Options) *Handler {
	return &Handler{
		log:      log,
		router:   router,
		verifier: verifier,
		monitor:  monitor,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The upstream application serves browsers from arbitrary
			// origins (the original deployment ran with CORS *); room
			// access control happens before joins ever reach this relay.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var verified domain.UserID
	if h.verifier != nil {
		user, err := h.verifier.Verify(r.URL.Query().Get("token"))
		if err != nil {
			h.log.Warn("Handshake rejected", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		verified = user
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := domain.NewConnID()
	sink := NewSink(h.opts.SinkBufferSize)

	if err := h.router.Enqueue(r.Context(), runtime.RegisterCommand{
		Connection: id,
		Sink:       sink,
		Verified:   verified,
	}); err != nil {
		h.log.Error("Registration failed", "connection", id, "error", err)
		_ = conn.Close()
		return
	}

	h.log.Info("Connection established", "connection", id, "remote", r.RemoteAddr)

	c := &connection{
		id:      id,
		conn:    conn,
		sink:    sink,
		log:     h.log,
		router:  h.router,
		monitor: h.monitor,
		maxSize: h.opts.MaxMessageSize,
		done:    make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
}

// connection pairs one WebSocket with its pumps. The read pump owns the
// lifecycle: when it returns, the disconnect cascade runs and the write
// pump is released through done.
type connection struct {
	id      domain.ConnID
	conn    *websocket.Conn
	sink    *Sink
	log     *slog.Logger
	router  *runtime.Router
	monitor *observability.Monitor
	maxSize int64
	done    chan struct{}
}

func (c *connection) readPump() {
	defer func() {
		close(c.done)
		_ = c.conn.Close()

		// The cascade must land even when the mailbox is saturated;
		// block (bounded) rather than leak membership and presence.
		ctx, cancel := context.WithTimeout(context.Background(), disconnectWait)
		defer cancel()
		if err := c.router.Enqueue(ctx, domain.DisconnectCommand{Connection: c.id}); err != nil {
			c.log.Error("Disconnect cascade not enqueued", "connection", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(c.maxSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected close", "connection", c.id, "error", err)
			} else {
				c.log.Debug("Connection closed", "connection", c.id, "error", err)
			}
			return
		}

		cmd, err := DecodeCommand(c.id, raw)
		if err != nil {
			// Dropped, never partially applied.
			c.monitor.IncrProtocolErrors()
			c.log.Debug("Dropping malformed frame", "connection", c.id, "error", err)
			continue
		}
		c.router.Dispatch(cmd)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case evt := <-c.sink.Events():
			payload, err := EncodeEvent(evt)
			if err != nil {
				c.log.Error("Unencodable event", "connection", c.id, "event", evt.EventName(), "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed", "connection", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
