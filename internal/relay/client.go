package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one live websocket connection. A connection belongs to one
// user and is joined to at most one room at a time; switching
// conversations leaves the previous room.
type Client struct {
	conn    *websocket.Conn
	handler *Handler
	userID  string

	mu     sync.Mutex
	roomID string
	closed bool

	send chan []byte
}

func newClient(h *Handler, userID string, conn *websocket.Conn) *Client {
	return &Client{conn: conn, handler: h, userID: userID, send: make(chan []byte, sendBuffer)}
}

// currentRoom returns the room this connection is joined to, or "".
func (c *Client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// setRoom records the new membership and returns the room left behind.
func (c *Client) setRoom(roomID string) (previous string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous = c.roomID
	c.roomID = roomID
	return previous
}

// enqueue hands an encoded event to the write pump without blocking the
// broadcaster. A full buffer means a stalled reader; the connection is
// closed so the room is not held up.
func (c *Client) enqueue(raw []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- raw:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		go c.Close()
	}
}

// reply sends an event to this connection only.
func (c *Client) reply(event string, payload any) {
	raw, err := MarshalEvent(event, payload)
	if err != nil {
		return
	}
	c.enqueue(raw)
}

func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handler.handleEvent(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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

// Close tears the connection down: leaves the current room, clears
// presence and stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	roomID := c.roomID
	c.mu.Unlock()

	if roomID != "" {
		c.handler.hub.Leave(roomID, c)
	}
	c.handler.clientClosed(c)
	close(c.send)
	_ = c.conn.Close()
}
