package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsamuel1/agi-diy/internal/registry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is the largest inbound frame accepted (1MB).
	DefaultMaxMessageSize = 1 << 20
)

// Router consumes the inbound frames of a connection.
type Router interface {
	// Handle processes one frame and returns the peer id the connection is
	// bound to afterwards.
	Handle(ctx context.Context, conn registry.Conn, raw []byte, peerID string) string

	// Disconnect releases whatever the connection owned.
	Disconnect(conn registry.Conn, peerID string)
}

// Options tunes the connection pumps.
type Options struct {
	// MaxMessageSize is the inbound frame limit in bytes.
	MaxMessageSize int64

	// SendBuffer is the per-client outbound queue length.
	SendBuffer int
}

// Handler upgrades HTTP requests and runs one read and one write pump per
// connection.
type Handler struct {
	router   Router
	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger
}

// NewHandler creates a handler that feeds every inbound frame to router.
func NewHandler(router Router, logger *slog.Logger, opts Options) *Handler {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	return &Handler{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opts:   opts,
		logger: logger,
	}
}

// HandleConnection upgrades the request and starts the pumps. It returns
// once the pumps are running; the upgrader has already replied on error.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, h.opts.SendBuffer)
	h.logger.Info("connection opened", "conn_id", client.ID(), "remote_addr", r.RemoteAddr)

	go h.writePump(client)
	go h.readPump(client)
	return nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.HandleConnection(w, r); err != nil {
		h.logger.Debug("upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
	}
}

// readPump feeds inbound frames to the router until the socket fails. The
// cleanup runs exactly once per connection, however it ended.
func (h *Handler) readPump(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	var peerID string
	defer func() {
		cancel()
		h.router.Disconnect(client, peerID)
		client.Close()
		h.logger.Info("connection closed", "conn_id", client.ID(), "peer_id", peerID)
	}()

	conn := client.Conn()
	conn.SetReadLimit(h.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "conn_id", client.ID(), "peer_id", peerID, "error", err)
			}
			return
		}
		// any inbound frame proves the connection is alive
		conn.SetReadDeadline(time.Now().Add(pongWait))

		peerID = h.router.Handle(ctx, client, raw, peerID)
	}
}

// writePump drains the client's queue onto the socket, one frame per
// message, and keeps the connection alive with pings.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	conn := client.Conn()
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("websocket write failed", "conn_id", client.ID(), "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
