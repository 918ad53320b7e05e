package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"ripple/internal/models"
)

// Inbound event vocabulary.
const (
	EventJoinConversations = "join_conversations"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
	EventMarkRead          = "mark_read"
	EventEditMessage       = "edit_message"
	EventDeleteMessage     = "delete_message"
)

// Outbound events owned by the gateway itself. Conversation-scoped events
// are named in the chat package.
const (
	EventAck         = "ack"
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

// Envelope is the wire frame for every gateway event. AckID is set by the
// client on operations that expect an acknowledgement and echoed back on the
// matching ack frame.
type Envelope struct {
	Type    string          `json:"type"`
	AckID   string          `json:"ack_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinConversationsPayload struct {
	ConversationIDs []int64 `json:"conversation_ids"`
}

type SendMessagePayload struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	FileURL        string `json:"file_url,omitempty"`
	FileName       string `json:"file_name,omitempty"`
}

type TypingPayload struct {
	ConversationID int64 `json:"conversation_id"`
	IsTyping       bool  `json:"is_typing"`
}

type MarkReadPayload struct {
	ConversationID int64   `json:"conversation_id"`
	MessageIDs     []int64 `json:"message_ids"`
}

type EditMessagePayload struct {
	MessageID  int64  `json:"message_id"`
	NewContent string `json:"new_content"`
}

type DeleteMessagePayload struct {
	MessageID int64 `json:"message_id"`
}

type AckPayload struct {
	AckID   string          `json:"ack_id,omitempty"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message *models.Message `json:"message,omitempty"`
}

type UserOnlinePayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type UserOfflinePayload struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"last_seen"`
}

// UserChannel addresses a user's personal channel, used for point-to-point
// notices.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// ConversationChannel addresses the broadcast channel for a conversation.
func ConversationChannel(conversationID int64) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

func encodeEvent(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Type: event, Payload: raw})
}
