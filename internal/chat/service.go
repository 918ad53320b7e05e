// Package chat implements the message lifecycle: authorization, persistence,
// and fan-out of send, edit, delete, read-receipt, and typing events.
package chat

import (
	"errors"
	"fmt"
	"time"

	"ripple/internal/db"
	"ripple/internal/logger"
	"ripple/internal/metrics"
	"ripple/internal/models"
)

// Broadcaster delivers an event to the members of a conversation channel.
// Delivery is at-most-once and best-effort; members without an active
// connection simply miss the event.
type Broadcaster interface {
	ToConversation(conversationID int64, event string, payload any, excludeUsers ...int64)
}

type Service struct {
	store *db.DB
	rooms Broadcaster
}

func NewService(store *db.DB, rooms Broadcaster) *Service {
	return &Service{store: store, rooms: rooms}
}

// requireParticipant re-derives membership from the durable conversation
// record. Channel membership is never trusted as an authorization proof.
func (s *Service) requireParticipant(conversationID, userID int64) error {
	if _, err := s.store.GetConversation(conversationID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	ok, err := s.store.IsParticipant(conversationID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// Send persists a new message, updates the conversation's last-message
// reference, and broadcasts it to the conversation channel. Persistence
// completes strictly before the broadcast is emitted or any acknowledgement
// is returned.
func (s *Service) Send(conversationID, senderID int64, content, msgType, fileURL, fileName string) (*models.Message, error) {
	if err := s.requireParticipant(conversationID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(&models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		FileURL:        fileURL,
		FileName:       fileName,
		Status:         models.MessageSent,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := s.store.SetLastMessage(conversationID, msg.ID, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.rooms.ToConversation(conversationID, EventReceiveMessage, ReceiveMessagePayload{
		Message:        msg,
		ConversationID: conversationID,
	})

	metrics.MessagesSentTotal.Inc()
	logger.Log.Debug("message sent", "conversation", conversationID, "message", msg.ID)
	return msg, nil
}

// Edit replaces the content of a message. Only the original sender may edit,
// and a deleted message may not be edited.
func (s *Service) Edit(messageID, actorID int64, newContent string) (*models.Message, error) {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg.SenderID != actorID {
		return nil, ErrUnauthorized
	}
	if msg.Deleted {
		return nil, ErrInvalidState
	}

	editedAt := time.Now()
	if err := s.store.UpdateMessageContent(messageID, newContent, editedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.rooms.ToConversation(msg.ConversationID, EventMessageEdited, MessageEditedPayload{
		MessageID:      messageID,
		NewContent:     newContent,
		EditedAt:       editedAt,
		ConversationID: msg.ConversationID,
	})

	return s.store.GetMessage(messageID)
}

// Delete tombstones a message. Only the original sender may delete; deleting
// an already-deleted message is a no-op success and does not re-broadcast.
func (s *Service) Delete(messageID, actorID int64) (*models.Message, error) {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg.SenderID != actorID {
		return nil, ErrUnauthorized
	}
	if msg.Deleted {
		return msg, nil
	}

	if err := s.store.MarkMessageDeleted(messageID, time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.rooms.ToConversation(msg.ConversationID, EventMessageDeleted, MessageDeletedPayload{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
	})

	return s.store.GetMessage(messageID)
}

// MarkRead records a read receipt for each referenced message not authored by
// the reader. Repeat calls are no-ops for receipts already recorded. One
// messages_read event is broadcast regardless of how many receipts were new,
// so every participant can reconcile its view.
func (s *Service) MarkRead(conversationID, readerID int64, messageIDs []int64) error {
	if err := s.requireParticipant(conversationID, readerID); err != nil {
		return err
	}

	if err := s.store.MarkMessagesRead(conversationID, readerID, messageIDs, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.rooms.ToConversation(conversationID, EventMessagesRead, MessagesReadPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
		ReadBy:         readerID,
	})
	return nil
}

// Typing relays a typing indicator to every other member of the conversation
// channel. Nothing is persisted and no server-side debouncing is applied.
func (s *Service) Typing(conversationID, userID int64, username string, isTyping bool) error {
	if err := s.requireParticipant(conversationID, userID); err != nil {
		return err
	}

	s.rooms.ToConversation(conversationID, EventTypingStatus, TypingStatusPayload{
		UserID:         userID,
		Username:       username,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	}, userID)
	return nil
}
