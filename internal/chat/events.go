package chat

import (
	"time"

	"ripple/internal/models"
)

// Conversation-scoped outbound events emitted by the lifecycle handler.
const (
	EventReceiveMessage = "receive_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventMessagesRead   = "messages_read"
	EventTypingStatus   = "typing_status"
)

type ReceiveMessagePayload struct {
	Message        *models.Message `json:"message"`
	ConversationID int64           `json:"conversation_id"`
}

type MessageEditedPayload struct {
	MessageID      int64     `json:"message_id"`
	NewContent     string    `json:"new_content"`
	EditedAt       time.Time `json:"edited_at"`
	ConversationID int64     `json:"conversation_id"`
}

type MessageDeletedPayload struct {
	MessageID      int64 `json:"message_id"`
	ConversationID int64 `json:"conversation_id"`
}

type MessagesReadPayload struct {
	ConversationID int64   `json:"conversation_id"`
	MessageIDs     []int64 `json:"message_ids"`
	ReadBy         int64   `json:"read_by"`
}

type TypingStatusPayload struct {
	UserID         int64  `json:"user_id"`
	Username       string `json:"username"`
	ConversationID int64  `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}
