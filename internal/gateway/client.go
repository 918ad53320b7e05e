package gateway

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ripple/internal/chat"
	"ripple/internal/logger"
	"ripple/internal/metrics"
	"ripple/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Connection states. Connecting and Authenticating are passed through inside
// the HTTP handshake before a Client exists; the remaining transitions are
// tracked here.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateJoined
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client supervises one authenticated connection. Its uuid identifies the
// connection handle in the presence registry so a stale disconnect can be
// told apart from the current one.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	id    string
	user  *models.User
	state atomic.Int32
}

func NewClient(hub *Hub, conn *websocket.Conn, user *models.User) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
		user: user,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Client) ID() string         { return c.id }
func (c *Client) User() *models.User { return c.user }
func (c *Client) State() State       { return State(c.state.Load()) }
func (c *Client) setState(s State)   { c.state.Store(int32(s)) }

// enqueue hands a frame to the write pump without ever blocking. Frames for
// a slow or closing connection are dropped; history catch-up is the store's
// job, not the gateway's.
func (c *Client) enqueue(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			// send channel closed by Unregister while a broadcast was in
			// flight; the member is gone, drop the frame.
		}
	}()
	select {
	case c.send <- data:
	default:
		logger.Log.Warn("send buffer full, dropping frame", "user", c.user.ID, "conn", c.id)
	}
}

func (c *Client) sendEvent(event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		logger.Log.Error("failed to encode event", "event", event, "err", err)
		return
	}
	c.enqueue(data)
}

// ack reports an operation result back to the originating connection,
// echoing the caller's ack id.
func (c *Client) ack(ackID string, msg *models.Message, err error) {
	payload := AckPayload{AckID: ackID, Success: err == nil, Message: msg}
	if err != nil {
		payload.Message = nil
		payload.Error = errorText(err)
	}
	c.sendEvent(EventAck, payload)
}

// errorText maps the lifecycle taxonomy to stable wire strings; anything
// unexpected is reported generically.
func errorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, chat.ErrNotFound):
		return "not found"
	case errors.Is(err, chat.ErrInvalidState):
		return "invalid state"
	case errors.Is(err, chat.ErrPersistence):
		return "persistence failure"
	default:
		return "internal error"
	}
}

// ReadPump processes inbound frames in arrival order for this connection.
// It exits on any transport error, which drives the Closed transition.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("unexpected close", "user", c.user.ID, "err", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Log.Warn("malformed frame", "user", c.user.ID, "err", err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch routes one event to its handler. A panic inside a handler is
// confined to this event: it is logged and reported as a generic failure to
// this caller only.
func (c *Client) dispatch(env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("event handler panic", "type", env.Type, "user", c.user.ID, "panic", r)
			if env.AckID != "" {
				c.sendEvent(EventAck, AckPayload{AckID: env.AckID, Success: false, Error: "internal error"})
			}
		}
	}()

	metrics.EventsTotal.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case EventJoinConversations:
		var p JoinConversationsPayload
		if c.decode(env, &p) {
			c.handleJoinConversations(p)
		}
	case EventSendMessage:
		var p SendMessagePayload
		if c.decode(env, &p) {
			msg, err := c.hub.chat.Send(p.ConversationID, c.user.ID, p.Content, p.Type, p.FileURL, p.FileName)
			c.ack(env.AckID, msg, err)
		}
	case EventTyping:
		var p TypingPayload
		if c.decode(env, &p) {
			if err := c.hub.chat.Typing(p.ConversationID, c.user.ID, c.user.Username, p.IsTyping); err != nil {
				logger.Log.Debug("typing relay rejected", "user", c.user.ID, "err", err)
			}
		}
	case EventMarkRead:
		var p MarkReadPayload
		if c.decode(env, &p) {
			if err := c.hub.chat.MarkRead(p.ConversationID, c.user.ID, p.MessageIDs); err != nil {
				logger.Log.Warn("mark_read failed", "user", c.user.ID, "err", err)
			}
		}
	case EventEditMessage:
		var p EditMessagePayload
		if c.decode(env, &p) {
			msg, err := c.hub.chat.Edit(p.MessageID, c.user.ID, p.NewContent)
			c.ack(env.AckID, msg, err)
		}
	case EventDeleteMessage:
		var p DeleteMessagePayload
		if c.decode(env, &p) {
			_, err := c.hub.chat.Delete(p.MessageID, c.user.ID)
			c.ack(env.AckID, nil, err)
		}
	default:
		logger.Log.Warn("unknown event type", "type", env.Type, "user", c.user.ID)
	}
}

func (c *Client) decode(env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		logger.Log.Warn("malformed payload", "type", env.Type, "user", c.user.ID, "err", err)
		if env.AckID != "" {
			c.sendEvent(EventAck, AckPayload{AckID: env.AckID, Success: false, Error: "malformed payload"})
		}
		return false
	}
	return true
}

// handleJoinConversations joins the conversation channels the user actually
// participates in. Membership is checked against the store, never inferred
// from the request.
func (c *Client) handleJoinConversations(p JoinConversationsPayload) {
	allowed, err := c.hub.store.FilterParticipating(c.user.ID, p.ConversationIDs)
	if err != nil {
		logger.Log.Warn("failed to resolve conversation membership", "user", c.user.ID, "err", err)
		return
	}
	for _, id := range allowed {
		c.hub.rooms.Join(c, ConversationChannel(id))
	}
	c.setState(StateActive)
	logger.Log.Debug("joined conversations", "user", c.user.ID, "count", len(allowed))
}

// WritePump serializes all writes to the connection and keeps it alive with
// periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
