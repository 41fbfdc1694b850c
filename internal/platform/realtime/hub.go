// Package realtime manages the gateway's live WebSocket connections. The Hub
// is the connection registry: it tracks every connection, the rooms it
// belongs to, and fans events out to users, roles, and rooms.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/platform/metrics"
)

// Room names. Every connection is auto-joined to its user room and role
// room; ad-hoc rooms (telemedicine sessions) are joined on request.
const (
	userRoomPrefix = "user:"
	roleRoomPrefix = "role:"
)

func UserRoom(userID string) string { return userRoomPrefix + userID }
func RoleRoom(role string) string   { return roleRoomPrefix + role }

// Event is the outbound wire frame pushed to clients.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Data: raw}, nil
}

// Redactor transforms an outbound payload for a recipient role before it
// reaches the wire.
type Redactor interface {
	RedactForRole(role string, payload []byte) []byte
}

type nopRedactor struct{}

func (nopRedactor) RedactForRole(_ string, payload []byte) []byte { return payload }

// Hub is the connection registry. A single mutex guards both the connection
// map and the room index so every mutation lands in both or neither; readers
// never observe a connection in a room it has left, or a registered
// connection missing its rooms.
type Hub struct {
	mu    sync.RWMutex
	conns map[ConnectionID]*Client
	rooms map[string]map[*Client]struct{}

	redactor Redactor
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewHub(redactor Redactor, logger zerolog.Logger, m *metrics.Metrics) *Hub {
	if redactor == nil {
		redactor = nopRedactor{}
	}
	return &Hub{
		conns:    make(map[ConnectionID]*Client),
		rooms:    make(map[string]map[*Client]struct{}),
		redactor: redactor,
		logger:   logger.With().Str("component", "hub").Logger(),
		metrics:  m,
	}
}

// Register adds a client to the registry and auto-joins its user and role
// rooms in one critical section. Registering an already-registered client is
// a no-op returning its existing id.
func (h *Hub) Register(client *Client) ConnectionID {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[client.ID]; ok {
		return client.ID
	}

	h.conns[client.ID] = client
	h.joinLocked(client, UserRoom(client.UserID))
	h.joinLocked(client, RoleRoom(client.Role))

	h.metrics.ConnectionsActive.Set(float64(len(h.conns)))
	h.logger.Debug().Str("conn_id", string(client.ID)).Str("user_id", client.UserID).
		Str("role", client.Role).Msg("connection registered")
	return client.ID
}

// Deregister removes a client from the registry and every room it joined,
// then closes its send channel. Safe to call more than once.
func (h *Hub) Deregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[client.ID]; !ok {
		return
	}

	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	delete(h.conns, client.ID)
	client.closeSend()

	h.metrics.ConnectionsActive.Set(float64(len(h.conns)))
	h.logger.Debug().Str("conn_id", string(client.ID)).Msg("connection deregistered")
}

// Join adds an already-registered client to a room.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[client.ID]; !ok {
		return
	}
	h.joinLocked(client, room)
}

// Leave removes a client from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) joinLocked(client *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// SendToUser pushes an event to every connection the user holds.
func (h *Hub) SendToUser(userID string, event Event) {
	h.SendToRoom(UserRoom(userID), event)
}

// SendToRole pushes an event to every connection held by members of a role.
func (h *Hub) SendToRole(role string, event Event) {
	h.SendToRoom(RoleRoom(role), event)
}

// SendToRoom pushes an event to every connection in a room. Each recipient's
// payload passes through the redactor for its role; a slow or closed
// connection degrades (the event is dropped for that connection only) and is
// counted, never blocking the sender or the other recipients.
func (h *Hub) SendToRoom(room string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	for client := range members {
		h.deliverLocked(client, event)
	}
}

// Broadcast pushes an event to every registered connection.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.conns {
		h.deliverLocked(client, event)
	}
}

// SendToRoomExcept pushes to a room, skipping one connection. Used for relay
// events so the sender does not receive its own signal.
func (h *Hub) SendToRoomExcept(room string, except ConnectionID, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if client.ID == except {
			continue
		}
		h.deliverLocked(client, event)
	}
}

func (h *Hub) deliverLocked(client *Client, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event.Type).Msg("failed to marshal event")
		return
	}
	payload = h.redactor.RedactForRole(client.Role, payload)

	h.metrics.PushesTotal.Inc()
	if !client.trySend(payload) {
		h.metrics.DeliveryDegradations.Inc()
		h.logger.Debug().Str("conn_id", string(client.ID)).Str("event", event.Type).
			Msg("delivery degraded; client buffer full")
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomCount returns the number of connections in a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
