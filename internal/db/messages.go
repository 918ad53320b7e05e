package db

import (
	"database/sql"
	"fmt"
	"time"

	"ripple/internal/models"
)

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.type,
	m.file_url, m.file_name, m.status, m.edited, m.edited_at, m.deleted, m.deleted_at,
	m.created_at, u.username, u.avatar`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var editedAt, deletedAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Type,
		&msg.FileURL, &msg.FileName, &msg.Status, &msg.Edited, &editedAt, &msg.Deleted, &deletedAt,
		&msg.CreatedAt, &msg.SenderName, &msg.SenderAvatar)
	if err != nil {
		return nil, err
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		msg.DeletedAt = &deletedAt.Time
	}
	return msg, nil
}

// CreateMessage persists a new message and returns it with sender display
// metadata populated.
func (db *DB) CreateMessage(msg *models.Message) (*models.Message, error) {
	if msg.Type == "" {
		msg.Type = models.MessageText
	}
	if msg.Status == "" {
		msg.Status = models.MessageSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	result, err := db.Exec(`
		INSERT INTO messages (conversation_id, sender_id, content, type, file_url, file_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, msg.SenderID, msg.Content, msg.Type, msg.FileURL, msg.FileName, msg.Status, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get message ID: %w", err)
	}

	return db.GetMessage(id)
}

// GetMessage fetches one message with sender metadata and its read set.
func (db *DB) GetMessage(id int64) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON m.sender_id = u.id
		WHERE m.id = ?
	`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}

	reads, err := db.GetMessageReads(id)
	if err != nil {
		return nil, err
	}
	msg.ReadBy = reads
	return msg, nil
}

func (db *DB) GetMessageReads(messageID int64) ([]models.ReadReceipt, error) {
	rows, err := db.Query(
		"SELECT message_id, user_id, read_at FROM message_reads WHERE message_id = ? ORDER BY read_at",
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get read receipts: %w", err)
	}
	defer rows.Close()

	var reads []models.ReadReceipt
	for rows.Next() {
		var r models.ReadReceipt
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan read receipt: %w", err)
		}
		reads = append(reads, r)
	}
	return reads, rows.Err()
}

func (db *DB) UpdateMessageContent(id int64, content string, editedAt time.Time) error {
	_, err := db.Exec(
		"UPDATE messages SET content = ?, edited = 1, edited_at = ? WHERE id = ?",
		content, editedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// MarkMessageDeleted tombstones the message in place.
func (db *DB) MarkMessageDeleted(id int64, deletedAt time.Time) error {
	_, err := db.Exec(
		"UPDATE messages SET deleted = 1, deleted_at = ?, content = ? WHERE id = ?",
		deletedAt, models.Tombstone, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// MarkMessagesRead appends a read receipt for each message in the
// conversation not authored by the reader. Set semantics: a receipt already
// present for a (message, reader) pair is left untouched.
func (db *DB) MarkMessagesRead(conversationID, readerID int64, messageIDs []int64, readAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range messageIDs {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
			SELECT m.id, ?, ? FROM messages m
			WHERE m.id = ? AND m.conversation_id = ? AND m.sender_id != ?
		`, readerID, readAt, id, conversationID, readerID); err != nil {
			return fmt.Errorf("failed to record read receipt: %w", err)
		}
		if _, err := tx.Exec(`
			UPDATE messages SET status = ?
			WHERE id = ? AND conversation_id = ? AND sender_id != ?
		`, models.MessageRead, id, conversationID, readerID); err != nil {
			return fmt.Errorf("failed to update message status: %w", err)
		}
	}
	return tx.Commit()
}

// GetConversationMessages returns one page of non-deleted history,
// oldest-first within the page, plus the total count for pagination.
func (db *DB) GetConversationMessages(conversationID int64, limit, offset int) ([]models.Message, int, error) {
	var total int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND deleted = 0",
		conversationID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = ? AND m.deleted = 0
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Page was fetched newest-first; clients render oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, total, nil
}
