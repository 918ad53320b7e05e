package gateway

import (
	"sync"
	"time"

	"ripple/internal/db"
	"ripple/internal/logger"
)

// Presence maps user ids to their authoritative connection. The map is a
// volatile fast-path cache rebuilt from zero on restart; the durable status
// and last-seen fields on the user record are mirrored on every transition.
// A user holds at most one authoritative connection; the last registration
// wins.
type Presence struct {
	mu       sync.RWMutex
	sessions map[int64]*Client
	store    *db.DB
}

func NewPresence(store *db.DB) *Presence {
	return &Presence{
		sessions: make(map[int64]*Client),
		store:    store,
	}
}

// Register installs the connection as the user's authoritative handle,
// replacing any prior one, and marks the durable record online. Registry
// operations never fail the caller; store errors are logged and swallowed.
func (p *Presence) Register(c *Client) {
	p.mu.Lock()
	p.sessions[c.user.ID] = c
	p.mu.Unlock()

	if err := p.store.SetUserOnline(c.user.ID, c.id); err != nil {
		logger.Log.Warn("failed to persist online status", "user", c.user.ID, "err", err)
	}
}

// Unregister removes the connection from the cache only if it is still the
// authoritative one, so a stale disconnect arriving after a newer reconnect
// cannot mark the user offline. Returns the stamped last-seen time when the
// user actually went offline.
func (p *Presence) Unregister(c *Client) (time.Time, bool) {
	p.mu.Lock()
	current, ok := p.sessions[c.user.ID]
	if !ok || current != c {
		p.mu.Unlock()
		return time.Time{}, false
	}
	delete(p.sessions, c.user.ID)
	p.mu.Unlock()

	lastSeen := time.Now()
	if err := p.store.SetUserOffline(c.user.ID, lastSeen); err != nil {
		logger.Log.Warn("failed to persist offline status", "user", c.user.ID, "err", err)
	}
	return lastSeen, true
}

// IsOnline is a pure read of the cache.
func (p *Presence) IsOnline(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.sessions[userID]
	return ok
}
