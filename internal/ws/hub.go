package ws

import (
	"encoding/json"
	"log"
	"sort"
	"sync"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// Hub tracks connected clients, the users behind them and their room memberships.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	users    map[string]map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	memberOf map[*Client]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		users:    make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		memberOf: make(map[*Client]map[string]struct{}),
	}
}

// Register adds a client and pushes the new presence snapshot to everyone.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if _, ok := h.users[c.Info.UserID]; !ok {
		h.users[c.Info.UserID] = make(map[*Client]struct{})
	}
	h.users[c.Info.UserID][c] = struct{}{}
	h.memberOf[c] = make(map[string]struct{})
	h.mu.Unlock()

	h.broadcastPresence()
}

// Unregister removes a client from every room. Presence is re-broadcast when its user
// has no connection left.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range h.memberOf[c] {
		h.removeFromRoomLocked(room, c)
	}
	delete(h.memberOf, c)

	wentOffline := false
	if conns, ok := h.users[c.Info.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.Info.UserID)
			wentOffline = true
		}
	}
	h.mu.Unlock()

	c.close()
	if wentOffline {
		h.broadcastPresence()
	}
}

// Join adds c to room. It reports false when c was already a member.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.memberOf[c]
	if !ok {
		return false
	}
	if _, member := rooms[room]; member {
		return false
	}
	rooms[room] = struct{}{}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	return true
}

// Leave removes c from room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.memberOf[c]; ok {
		delete(rooms, room)
	}
	h.removeFromRoomLocked(room, c)
}

// IsMember reports whether c joined room.
func (h *Hub) IsMember(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

func (h *Hub) removeFromRoomLocked(room string, c *Client) {
	if conns, ok := h.rooms[room]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// BroadcastRoom sends event to every member of room except the given client.
func (h *Hub) BroadcastRoom(room string, event models.Event, except *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

// DeliverMessage sends new-message once to each connection that joined the room or
// belongs to one of its participants.
func (h *Hub) DeliverMessage(room models.Room, msg models.Message) {
	event, err := models.NewEvent(models.EventNewMessage, msg)
	if err != nil {
		log.Printf("encode message event: %v", err)
		return
	}

	h.mu.RLock()
	set := make(map[*Client]struct{})
	for c := range h.rooms[room.ID] {
		set[c] = struct{}{}
	}
	for _, userID := range []string{room.User1ID, room.User2ID} {
		for c := range h.users[userID] {
			set[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.deliver(targets, event)
}

// OnlineUsers returns the users with at least one connection, sorted.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) broadcastPresence() {
	event, err := models.NewEvent(models.EventPresenceSnapshot, models.PresencePayload{UserIDs: h.OnlineUsers()})
	if err != nil {
		log.Printf("encode presence event: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

func (h *Hub) deliver(targets []*Client, event models.Event) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("encode %s event: %v", event.Type, err)
		return
	}
	for _, c := range targets {
		if !c.enqueue(payload) {
			observability.IncWSEvent("ws_drop")
		}
	}
	observability.IncWSEvent(event.Type)
}
