// Package gateway owns the messaging core: per-connection supervision,
// presence tracking, channel membership, and event fan-out.
package gateway

import (
	"sync"

	"ripple/internal/chat"
	"ripple/internal/db"
	"ripple/internal/logger"
	"ripple/internal/metrics"
)

type Hub struct {
	store    *db.DB
	presence *Presence
	rooms    *Rooms
	chat     *chat.Service

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub(store *db.DB) *Hub {
	rooms := NewRooms()
	return &Hub{
		store:    store,
		presence: NewPresence(store),
		rooms:    rooms,
		chat:     chat.NewService(store, rooms),
		clients:  make(map[*Client]bool),
	}
}

// Chat exposes the lifecycle handler so the REST fallback endpoints share the
// same persistence and broadcast path as the gateway.
func (h *Hub) Chat() *chat.Service { return h.chat }

func (h *Hub) Presence() *Presence { return h.presence }

func (h *Hub) Rooms() *Rooms { return h.rooms }

// Register wires an authenticated connection into the gateway: it becomes the
// user's presence handle, joins its personal channel, and a global
// user_online notice goes out to every other connected user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	c.setState(StateJoined)
	h.presence.Register(c)
	h.rooms.Join(c, UserChannel(c.user.ID))

	h.broadcastOthers(c, EventUserOnline, UserOnlinePayload{
		UserID:   c.user.ID,
		Username: c.user.Username,
	})

	metrics.ActiveConnections.Inc()
	logger.Log.Info("client connected", "user", c.user.Username, "id", c.user.ID, "conn", c.id, "total", total)
}

// Unregister unwinds channel membership and presence and announces
// user_offline. Duplicate close notifications are possible from the
// transport, so the whole path is idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	c.setState(StateClosed)
	h.rooms.LeaveAll(c)

	if lastSeen, ok := h.presence.Unregister(c); ok {
		h.broadcastOthers(c, EventUserOffline, UserOfflinePayload{
			UserID:   c.user.ID,
			Username: c.user.Username,
			LastSeen: lastSeen,
		})
	}

	close(c.send)
	metrics.ActiveConnections.Dec()
	logger.Log.Info("client disconnected", "user", c.user.Username, "id", c.user.ID, "conn", c.id, "total", total)
}

// broadcastOthers sends a global presence notice to every connected client
// except the originating one. Not scoped to shared conversations; see
// DESIGN.md for the fan-out caveat.
func (h *Hub) broadcastOthers(origin *Client, event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		logger.Log.Error("failed to encode presence notice", "event", event, "err", err)
		return
	}

	metrics.BroadcastsTotal.WithLabelValues(event).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == origin {
			continue
		}
		c.enqueue(data)
	}
}
