// Package stream pushes game events to WebSocket clients and feeds pointer
// input from those clients back into a game session.
package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const broadcastBuffer = 64

// Hub maintains the set of clients watching one session and broadcasts
// messages to them.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	direct     chan directMsg
	done       chan struct{}
	stopOnce   sync.Once
	log        zerolog.Logger
}

// NewHub initializes a hub. Call Run to start delivering messages.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan directMsg, broadcastBuffer),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled or Stop is
// called, closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug().Int("clients", len(h.clients)).Msg("stream client connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Debug().Int("clients", len(h.clients)).Msg("stream client disconnected")
			}
		case d := <-h.direct:
			if _, ok := h.clients[d.to]; ok {
				select {
				case d.to.send <- d.msg:
				default:
				}
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast queues msg for every client. It never blocks: when the queue is
// full or the hub has stopped the message is dropped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn().Msg("stream broadcast queue full, dropping message")
	}
}

// Stop shuts the hub down. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Done is closed once the hub has been stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

// directMsg is a reply meant for a single client.
type directMsg struct {
	to  *Client
	msg []byte
}

func (h *Hub) reply(c *Client, msg []byte) {
	select {
	case h.direct <- directMsg{to: c, msg: msg}:
	case <-h.done:
	default:
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
