package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ezmad-Ze/chat-app/logger"
	"github.com/Ezmad-Ze/chat-app/service/auth"
)

// Client is one authenticated connection to the gateway. The identity is
// fixed at handshake time; the room set lives in the RoomManager. Outbound
// frames go through Send, consumed by a single writer goroutine, so the
// websocket is never written from two goroutines at once.
type Client struct {
	ConnID   string
	Identity auth.Identity
	WS       *websocket.Conn

	Send chan []byte

	writeTimeout time.Duration

	mu     sync.Mutex // guards closed and the close of Send
	closed bool
}

func NewClient(connID string, identity auth.Identity, ws *websocket.Conn, sendQueueSize int, writeTimeout time.Duration) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Client{
		ConnID:       connID,
		Identity:     identity,
		WS:           ws,
		Send:         make(chan []byte, sendQueueSize),
		writeTimeout: writeTimeout,
	}
}

func (c *Client) Authenticated() bool {
	return c.Identity.UserID != ""
}

// enqueue offers a payload to the writer without blocking. A full queue
// means a slow client; the frame is dropped, consistent with best-effort
// broadcast. Safe against a concurrent closeSend: delivery workers may
// still hold this client in a membership snapshot taken before cleanup.
func (c *Client) enqueue(payload []byte) bool {
	if payload == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		logger.Warnf("[chat] send queue full, dropping frame conn=%s user=%s", c.ConnID, c.Identity.UserID)
		return false
	}
}

// writePump drains Send until it is closed, then closes the websocket.
// Run exactly once per client.
func (c *Client) writePump() {
	defer func() {
		_ = c.WS.Close()
	}()
	for payload := range c.Send {
		if err := c.WS.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return
		}
		if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.WS.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// closeSend shuts the outbound queue; the writer goroutine finishes the
// remaining frames and closes the socket. Holds the same lock enqueue
// takes, so no enqueue can hit the channel after it is closed.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
