package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Grant records that a pool account was made an administrator of a chat.
type Grant struct {
	ID        int64
	Chat      string
	UserID    int64
	Username  string
	RunID     string
	CreatedAt time.Time
}

func (s *Storage) RecordGrant(chat string, userID int64, username, runID string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO provision_grants (chat, user_id, username, run_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, chat, userID, username, runID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record grant: %w", err)
	}
	return nil
}

func (s *Storage) IsGranted(chat string, userID int64) (bool, error) {
	var id int64
	err := s.db.QueryRow(`
		SELECT id FROM provision_grants WHERE chat = ? AND user_id = ?
	`, chat, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check grant: %w", err)
	}
	return true, nil
}

func (s *Storage) ListGrants(chat string) ([]*Grant, error) {
	rows, err := s.db.Query(`
		SELECT id, chat, user_id, username, run_id, created_at
		FROM provision_grants
		WHERE chat = ?
		ORDER BY created_at ASC, id ASC
	`, chat)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.Chat, &g.UserID, &g.Username, &g.RunID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, &g)
	}
	return grants, rows.Err()
}

func (s *Storage) DeleteGrant(chat string, userID int64) error {
	if _, err := s.db.Exec(`
		DELETE FROM provision_grants WHERE chat = ? AND user_id = ?
	`, chat, userID); err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	return nil
}
