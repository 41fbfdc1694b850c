package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
)

// ConnectionID identifies one registered connection. A user with several
// tabs holds several ids.
type ConnectionID string

// Conn abstracts the WebSocket transport for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live connection with its principal and room memberships.
// Room membership is mutated only by the Hub under its lock.
type Client struct {
	ID     ConnectionID
	UserID string
	Role   string

	send      chan []byte
	sendWait  time.Duration
	conn      Conn
	closeOnce sync.Once
	rooms     map[string]struct{}
}

// NewClient wraps a transport for registration with the Hub. sendWait bounds
// how long a push may wait on a full client buffer before degrading.
func NewClient(userID, role string, conn Conn, sendWait time.Duration) *Client {
	return &Client{
		ID:       ConnectionID(uuid.New().String()),
		UserID:   userID,
		Role:     role,
		send:     make(chan []byte, 256),
		sendWait: sendWait,
		conn:     conn,
		rooms:    make(map[string]struct{}),
	}
}

// trySend queues a payload for the write pump, waiting at most sendWait on a
// full buffer. Returns false when the payload was dropped for this
// connection.
func (c *Client) trySend(payload []byte) (delivered bool) {
	// The channel may close concurrently with a push; a send on a closed
	// channel panics, and that must degrade, not crash the hub.
	defer func() {
		if recover() != nil {
			delivered = false
		}
	}()

	select {
	case c.send <- payload:
		return true
	default:
	}

	if c.sendWait <= 0 {
		return false
	}
	timer := time.NewTimer(c.sendWait)
	defer timer.Stop()
	select {
	case c.send <- payload:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// WritePump drains the send channel to the transport until the channel
// closes or a write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(gorillawebsocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// GorillaConn adapts a gorilla connection to the Conn interface.
type GorillaConn struct {
	WS *gorillawebsocket.Conn
}

func (g *GorillaConn) ReadMessage() (int, []byte, error) {
	return g.WS.ReadMessage()
}

func (g *GorillaConn) WriteMessage(messageType int, data []byte) error {
	return g.WS.WriteMessage(messageType, data)
}

func (g *GorillaConn) Close() error {
	return g.WS.Close()
}
