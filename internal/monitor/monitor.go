// Package monitor exposes an optional, read-only admin websocket that
// broadcasts session-count events. It never touches the session registry:
// the count arrives in each Event from the caller, and the only lock it
// takes is its own client set's.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// Event is one broadcast frame.
type Event struct {
	Sessions int    `json:"sessions"`
	Event    string `json:"event"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected admin clients and fans events out to all of them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *logrus.Logger
}

// NewHub builds an empty Hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
}

// Handler accepts a websocket connection and holds it open until the peer
// disconnects. Inbound frames are read and discarded — this endpoint has
// nothing to receive, only to emit.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("monitor: accept failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register(c)
	defer h.unregister(c)

	go c.writeLoop()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (c *client) writeLoop() {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast fans ev out to every connected client. Clients that aren't
// keeping up have the frame dropped rather than blocking the sweep that
// produced it.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("monitor: dropping event for slow client")
		}
	}
}
