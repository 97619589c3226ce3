package relay

import (
	"log"
	"sync"
)

// room is one live broadcast group. clients is guarded by the hub lock;
// sendMu serializes the persist-then-broadcast path so every subscriber
// observes messages in persistence-completion order.
type room struct {
	clients map[*Client]bool
	sendMu  sync.Mutex
}

// Hub owns the room registry: room id to the set of subscribed
// connections. All membership changes go through the hub lock, so joins
// and disconnects are safe under concurrency.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// Join subscribes a connection to a room, creating the room on first
// use. Idempotent.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[roomID]
	if r == nil {
		r = &room{clients: make(map[*Client]bool)}
		h.rooms[roomID] = r
	}
	r.clients[c] = true
}

// Leave removes a connection from a room, dropping the room once empty.
func (h *Hub) Leave(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[roomID]
	if r == nil {
		return
	}
	delete(r.clients, c)
	if len(r.clients) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast fans an event out to every connection in the room, including
// the one that produced it. A connection whose send buffer is full is
// closed rather than allowed to stall the others.
func (h *Hub) Broadcast(roomID, event string, payload any) {
	h.broadcast(roomID, event, payload, nil)
}

// BroadcastExcept fans an event out to the room excluding one connection.
// Used for typing signals, which the typist should not echo back.
func (h *Hub) BroadcastExcept(roomID, event string, payload any, except *Client) {
	h.broadcast(roomID, event, payload, except)
}

func (h *Hub) broadcast(roomID, event string, payload any, except *Client) {
	raw, err := MarshalEvent(event, payload)
	if err != nil {
		log.Printf("broadcast %s to %s: %v", event, roomID, err)
		return
	}

	h.mu.RLock()
	r := h.rooms[roomID]
	var members []*Client
	if r != nil {
		members = make([]*Client, 0, len(r.clients))
		for c := range r.clients {
			if c != except {
				members = append(members, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(raw)
	}
}

// lockRoom acquires the room's write serialization lock, creating the
// room if the sender has not joined it yet. The returned func releases
// the lock.
func (h *Hub) lockRoom(roomID string) func() {
	h.mu.Lock()
	r := h.rooms[roomID]
	if r == nil {
		r = &room{clients: make(map[*Client]bool)}
		h.rooms[roomID] = r
	}
	h.mu.Unlock()

	r.sendMu.Lock()
	return r.sendMu.Unlock
}
