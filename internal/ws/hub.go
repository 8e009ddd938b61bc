package ws

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// emitter is the part of a socket.io connection the hub needs.
type emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

// Hub fans messages out to connected clients. Rooms are game codes and hold
// user ids rather than sockets, so a player keeps their room membership
// across reconnects and open tabs.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]bool    // gameCode -> userId set
	members map[string]map[string]emitter // userId -> socketID -> conn
	users   map[string]string             // socketID -> userId
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[string]bool),
		members: make(map[string]map[string]emitter),
		users:   make(map[string]string),
	}
}

// Bind associates a connection with the user id it speaks for. A socket
// that switches user ids is moved.
func (h *Hub) Bind(userID string, c emitter) {
	if userID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.users[c.ID()]; ok && prev != userID {
		h.dropLocked(prev, c.ID())
	}
	if h.members[userID] == nil {
		h.members[userID] = make(map[string]emitter)
	}
	h.members[userID][c.ID()] = c
	h.users[c.ID()] = userID
}

// Drop forgets a connection, e.g. on disconnect. Room memberships stay.
func (h *Hub) Drop(c emitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if userID, ok := h.users[c.ID()]; ok {
		h.dropLocked(userID, c.ID())
	}
}

func (h *Hub) dropLocked(userID, sid string) {
	delete(h.users, sid)
	if m := h.members[userID]; m != nil {
		delete(m, sid)
		if len(m) == 0 {
			delete(h.members, userID)
		}
	}
}

// UserOf returns the user id bound to a socket.
func (h *Hub) UserOf(sid string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.users[sid]
}

func (h *Hub) Join(room, participant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][participant] = true
}

func (h *Hub) Leave(room, participant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.rooms[room]; m != nil {
		delete(m, participant)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) CloseRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, room)
}

// InRoom reports whether participant is a member of room.
func (h *Hub) InRoom(room, participant string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[room][participant]
}

func (h *Hub) SendToRoom(room, event string, payload any) {
	h.mu.RLock()
	var conns []emitter
	for userID := range h.rooms[room] {
		for _, c := range h.members[userID] {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		emit(c, event, payload)
	}
	log.Debug().Str("code", room).Str("event", event).Int("conns", len(conns)).Msg("broadcast")
}

func (h *Hub) SendToParticipant(participant, event string, payload any) {
	h.mu.RLock()
	conns := make([]emitter, 0, len(h.members[participant]))
	for _, c := range h.members[participant] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		log.Debug().Str("userId", participant).Str("event", event).Msg("no connection for participant")
	}
	for _, c := range conns {
		emit(c, event, payload)
	}
}

func emit(c emitter, event string, payload any) {
	if payload == nil {
		c.Emit(event)
		return
	}
	c.Emit(event, payload)
}
