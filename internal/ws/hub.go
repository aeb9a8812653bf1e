// Package ws implements the realtime channel layer: websocket clients,
// broadcast rooms scoped to cards and POS transactions, and the event
// envelope both sides speak.
package ws

import (
	"encoding/json"
	"sync"

	"proxpay/pkg/logger"
)

// Envelope is the wire frame for every channel message, client- and
// server-originated alike.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EventHandler receives inbound client events. Payloads are validated at
// this boundary before they reach the state machine.
type EventHandler interface {
	HandleEvent(c *Client, event string, data json.RawMessage)
	HandleDisconnect(c *Client)
}

// Hub tracks connected clients and their room memberships. Publishes are
// fire-and-forget: a slow client drops frames rather than blocking the
// transaction path.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	logger  logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  log,
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
}

// Publish sends an event to every member of a room.
func (h *Hub) Publish(room, event string, payload interface{}) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.Send(event, payload)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
