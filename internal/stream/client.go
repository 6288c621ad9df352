package stream

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Command is a pointer event sent by a renderer over the socket.
type Command struct {
	Type string  `json:"type"` // "begin", "update", "end", "cancel", "restart"
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Handler applies a command and returns an optional direct reply for the
// sending client (nil for none).
type Handler func(Command) []byte

// Client is one WebSocket connection attached to a hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	handler Handler
}

// NewClient wraps conn. Serve starts it.
func NewClient(hub *Hub, conn *websocket.Conn, h Handler) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		handler: h,
	}
}

// Serve registers the client and pumps messages until the connection or
// the hub goes away. It blocks; the write pump runs on its own goroutine.
func (c *Client) Serve(hello []byte) {
	if !c.hub.add(c) {
		c.conn.Close()
		return
	}
	if hello != nil {
		c.queue(hello)
	}
	go c.writePump()
	c.readPump()
}

// queue sends msg to this client only. The hub owns the send channel, so
// the message is routed through it.
func (c *Client) queue(msg []byte) { c.hub.reply(c, msg) }

// readPump pumps pointer commands from the connection to the handler.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Msg("stream read")
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.log.Debug().Err(err).Msg("stream: bad command")
			c.queue([]byte(`{"kind":"error","error":"bad_json"}`))
			continue
		}
		if reply := c.handler(cmd); reply != nil {
			c.queue(reply)
		}
	}
}

// writePump pumps messages from the hub to the connection and keeps it
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
