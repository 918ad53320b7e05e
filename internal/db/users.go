package db

import (
	"database/sql"
	"fmt"
	"time"

	"ripple/internal/models"
)

const userColumns = `id, username, password, avatar, status, last_seen, connection_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var lastSeen sql.NullTime
	err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Avatar,
		&user.Status, &lastSeen, &user.ConnectionID, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}
	return user, nil
}

func (db *DB) CreateUser(username, password, avatar string) (*models.User, error) {
	result, err := db.Exec(
		"INSERT INTO users (username, password, avatar, status, created_at) VALUES (?, ?, ?, ?, ?)",
		username, password, avatar, models.StatusOffline, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", username, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", username, err)
	}

	return db.GetUserByID(id)
}

func (db *DB) GetUserByID(id int64) (*models.User, error) {
	user, err := scanUser(db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE id = ?", id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}

func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	user, err := scanUser(db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE username = ?", username,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %q: %w", username, err)
	}
	return user, nil
}

// ListUsers returns every user except the given one, presence fields included.
func (db *DB) ListUsers(excludeID int64) ([]*models.User, error) {
	rows, err := db.Query(
		"SELECT "+userColumns+" FROM users WHERE id != ? ORDER BY username", excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SearchUsers matches usernames case-insensitively, exact and prefix matches
// ranked first.
func (db *DB) SearchUsers(query string) ([]*models.User, error) {
	rows, err := db.Query(`
		SELECT `+userColumns+`
		FROM users
		WHERE username LIKE ? COLLATE NOCASE
		ORDER BY
			CASE
				WHEN username LIKE ? COLLATE NOCASE THEN 1
				WHEN username LIKE ? COLLATE NOCASE THEN 2
				ELSE 3
			END,
			username COLLATE NOCASE
		LIMIT 10
	`, "%"+query+"%", query, query+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (db *DB) UpdateProfile(id int64, username, avatar string) (*models.User, error) {
	if _, err := db.Exec(
		"UPDATE users SET username = ?, avatar = ? WHERE id = ?",
		username, avatar, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return db.GetUserByID(id)
}

// SetUserOnline marks the user online and records its current connection.
func (db *DB) SetUserOnline(id int64, connectionID string) error {
	_, err := db.Exec(
		"UPDATE users SET status = ?, connection_id = ? WHERE id = ?",
		models.StatusOnline, connectionID, id,
	)
	return err
}

// SetUserOffline marks the user offline, stamps last-seen, and clears the
// stale connection reference.
func (db *DB) SetUserOffline(id int64, lastSeen time.Time) error {
	_, err := db.Exec(
		"UPDATE users SET status = ?, last_seen = ?, connection_id = '' WHERE id = ?",
		models.StatusOffline, lastSeen, id,
	)
	return err
}
