package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jsamuel1/agi-diy/internal/model"
)

// DefaultSendBuffer is the number of frames queued per client before it is
// considered too slow and dropped.
const DefaultSendBuffer = 256

// Client is one WebSocket connection. Frames queued with Send are written by
// the connection's write pump, so Send never blocks on the network.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn with a send queue of bufferSize frames.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

// ID returns the connection id. It is unrelated to any peer id the
// connection announces.
func (c *Client) ID() string {
	return c.id
}

// Send queues a frame. A full queue closes the client and returns
// ErrSendBufferFull.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrConnClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.closeLocked()
		return model.ErrSendBufferFull
	}
}

// Close stops accepting frames. The write pump flushes a close frame and
// tears down the socket once the queue drains.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
