package models

import "time"

// User status values mirrored between the presence registry and the store.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Conversation types.
const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

// Message types and statuses.
const (
	MessageText = "text"
	MessageFile = "file"

	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
)

// Tombstone replaces the content of a deleted message. The message row is
// never physically removed.
const Tombstone = "This message was deleted"

type User struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Password     string     `json:"-" db:"password"`
	Avatar       string     `json:"avatar" db:"avatar"`
	Status       string     `json:"status" db:"status"`
	LastSeen     *time.Time `json:"last_seen,omitempty" db:"last_seen"`
	ConnectionID string     `json:"-" db:"connection_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

type Conversation struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Type          string    `json:"type" db:"type"`
	LastMessageID *int64    `json:"last_message_id,omitempty" db:"last_message_id"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`

	// Populated on read paths, not stored on the conversation row itself.
	Participants []User   `json:"participants,omitempty"`
	LastMessage  *Message `json:"last_message,omitempty"`
}

type ConversationParticipant struct {
	ConversationID int64     `json:"conversation_id" db:"conversation_id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
}

type Message struct {
	ID             int64      `json:"id" db:"id"`
	ConversationID int64      `json:"conversation_id" db:"conversation_id"`
	SenderID       int64      `json:"sender_id" db:"sender_id"`
	Content        string     `json:"content" db:"content"`
	Type           string     `json:"type" db:"type"`
	FileURL        string     `json:"file_url,omitempty" db:"file_url"`
	FileName       string     `json:"file_name,omitempty" db:"file_name"`
	Status         string     `json:"status" db:"status"`
	Edited         bool       `json:"edited" db:"edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty" db:"edited_at"`
	Deleted        bool       `json:"deleted" db:"deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`

	// Sender display metadata, populated for broadcast and history reads.
	SenderName   string `json:"sender_name,omitempty"`
	SenderAvatar string `json:"sender_avatar,omitempty"`

	ReadBy []ReadReceipt `json:"read_by,omitempty"`
}

type ReadReceipt struct {
	MessageID int64     `json:"message_id" db:"message_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ReadAt    time.Time `json:"read_at" db:"read_at"`
}

// Request/Response structures
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UpdateProfileRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type CreateConversationRequest struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Participants []int64 `json:"participants"`
}

type SendMessageRequest struct {
	Content  string `json:"content"`
	Type     string `json:"type"`
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}
