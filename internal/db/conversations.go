package db

import (
	"database/sql"
	"fmt"
	"time"

	"ripple/internal/models"
)

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var lastMessageID sql.NullInt64
	err := row.Scan(&conv.ID, &conv.Name, &conv.Type, &lastMessageID, &conv.UpdatedAt, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastMessageID.Valid {
		conv.LastMessageID = &lastMessageID.Int64
	}
	return conv, nil
}

func (db *DB) CreateConversation(name, convType string, participants []int64) (*models.Conversation, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("conversation must have at least 2 participants")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO conversations (name, type, updated_at, created_at) VALUES (?, ?, ?, ?)",
		name, convType, time.Now(), time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	conversationID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation ID: %w", err)
	}

	for _, userID := range participants {
		if _, err := tx.Exec(
			"INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)",
			conversationID, userID,
		); err != nil {
			return nil, fmt.Errorf("failed to add participant %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return db.GetConversation(conversationID)
}

func (db *DB) GetConversation(id int64) (*models.Conversation, error) {
	conv, err := scanConversation(db.QueryRow(
		"SELECT id, name, type, last_message_id, updated_at, created_at FROM conversations WHERE id = ?", id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %d: %w", id, err)
	}
	return conv, nil
}

// GetUserConversations returns the user's conversations newest-activity first,
// with participants and the last message populated.
func (db *DB) GetUserConversations(userID int64) ([]*models.Conversation, error) {
	rows, err := db.Query(`
		SELECT c.id, c.name, c.type, c.last_message_id, c.updated_at, c.created_at
		FROM conversations c
		JOIN conversation_participants cp ON c.id = cp.conversation_id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	for _, conv := range conversations {
		if err := db.populateConversation(conv); err != nil {
			return nil, err
		}
	}
	return conversations, nil
}

func (db *DB) populateConversation(conv *models.Conversation) error {
	participants, err := db.GetConversationParticipants(conv.ID)
	if err != nil {
		return err
	}
	conv.Participants = participants

	if conv.LastMessageID != nil {
		msg, err := db.GetMessage(*conv.LastMessageID)
		if err == nil {
			conv.LastMessage = msg
		} else if err != ErrNotFound {
			return err
		}
	}
	return nil
}

// GetExistingPrivateConversation finds a private conversation whose
// participant set is exactly the two given users. Returns nil when none
// exists.
func (db *DB) GetExistingPrivateConversation(userID1, userID2 int64) (*models.Conversation, error) {
	row := db.QueryRow(`
		SELECT c.id, c.name, c.type, c.last_message_id, c.updated_at, c.created_at
		FROM conversations c
		JOIN conversation_participants cp1 ON c.id = cp1.conversation_id AND cp1.user_id = ?
		JOIN conversation_participants cp2 ON c.id = cp2.conversation_id AND cp2.user_id = ?
		WHERE c.type = ?
		AND (SELECT COUNT(*) FROM conversation_participants cp WHERE cp.conversation_id = c.id) = 2
	`, userID1, userID2, models.ConversationPrivate)

	conv, err := scanConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query existing conversation: %w", err)
	}
	if err := db.populateConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (db *DB) GetConversationParticipants(conversationID int64) ([]models.User, error) {
	rows, err := db.Query(`
		SELECT u.id, u.username, u.avatar, u.status, u.last_seen, u.created_at
		FROM users u
		JOIN conversation_participants cp ON u.id = cp.user_id
		WHERE cp.conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []models.User
	for rows.Next() {
		var user models.User
		var lastSeen sql.NullTime
		if err := rows.Scan(&user.ID, &user.Username, &user.Avatar, &user.Status, &lastSeen, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if lastSeen.Valid {
			user.LastSeen = &lastSeen.Time
		}
		participants = append(participants, user)
	}
	return participants, rows.Err()
}

func (db *DB) GetConversationParticipantIDs(conversationID int64) ([]int64, error) {
	rows, err := db.Query(
		"SELECT user_id FROM conversation_participants WHERE conversation_id = ?",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participantIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant ID: %w", err)
		}
		participantIDs = append(participantIDs, id)
	}
	return participantIDs, rows.Err()
}

func (db *DB) IsParticipant(conversationID, userID int64) (bool, error) {
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?",
		conversationID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}

// FilterParticipating narrows the given conversation ids down to the ones the
// user actually belongs to.
func (db *DB) FilterParticipating(userID int64, conversationIDs []int64) ([]int64, error) {
	var out []int64
	for _, id := range conversationIDs {
		ok, err := db.IsParticipant(id, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// SetLastMessage records the conversation's most recent message and bumps its
// activity timestamp.
func (db *DB) SetLastMessage(conversationID, messageID int64, at time.Time) error {
	_, err := db.Exec(
		"UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?",
		messageID, at, conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to set last message: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation, its participant rows, and all
// of its messages and read receipts.
func (db *DB) DeleteConversation(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		"DELETE FROM message_reads WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)",
		"DELETE FROM messages WHERE conversation_id = ?",
		"DELETE FROM conversation_participants WHERE conversation_id = ?",
		"DELETE FROM conversations WHERE id = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
	}
	return tx.Commit()
}
