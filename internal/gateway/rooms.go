package gateway

import (
	"sync"

	"ripple/internal/logger"
	"ripple/internal/metrics"
)

// Rooms groups connections into addressable broadcast channels: one personal
// channel per user and one channel per conversation. A channel exists only
// while it has members.
type Rooms struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]bool
}

func NewRooms() *Rooms {
	return &Rooms{channels: make(map[string]map[*Client]bool)}
}

// Join is idempotent.
func (r *Rooms) Join(c *Client, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[*Client]bool)
		r.channels[channel] = members
	}
	members[c] = true
}

// Leave is idempotent; the channel is dropped once empty.
func (r *Rooms) Leave(c *Client, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.channels[channel]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

// LeaveAll removes the connection from every channel, invoked on disconnect.
func (r *Rooms) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for channel, members := range r.channels {
		delete(members, c)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

// Members returns a snapshot of the channel's current member set.
func (r *Rooms) Members(channel string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Client, 0, len(r.channels[channel]))
	for c := range r.channels[channel] {
		members = append(members, c)
	}
	return members
}

// Broadcast delivers the event to every current member of the channel except
// connections belonging to the excluded users. Delivery is at-most-once and
// fire-and-forget per member: a slow member's frame is dropped rather than
// blocking the fan-out, and an empty or unknown channel is a silent no-op.
func (r *Rooms) Broadcast(channel, event string, payload any, excludeUsers ...int64) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		logger.Log.Error("failed to encode broadcast", "event", event, "err", err)
		return
	}

	metrics.BroadcastsTotal.WithLabelValues(event).Inc()

	for _, c := range r.Members(channel) {
		if excluded(c.user.ID, excludeUsers) {
			continue
		}
		c.enqueue(data)
	}
}

// ToConversation implements chat.Broadcaster.
func (r *Rooms) ToConversation(conversationID int64, event string, payload any, excludeUsers ...int64) {
	r.Broadcast(ConversationChannel(conversationID), event, payload, excludeUsers...)
}

func excluded(userID int64, exclude []int64) bool {
	for _, id := range exclude {
		if id == userID {
			return true
		}
	}
	return false
}
