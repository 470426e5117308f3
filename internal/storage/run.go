package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Run summarizes one provisioning pass over the pool.
type Run struct {
	ID          string
	Chat        string
	RequestedBy int64
	Granted     int
	Skipped     int
	Failed      int
	CreatedAt   time.Time
}

func (s *Storage) SaveRun(run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO provision_runs (id, chat, requested_by, granted, skipped, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Chat, run.RequestedBy, run.Granted, run.Skipped, run.Failed, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save provision run: %w", err)
	}
	return nil
}

func (s *Storage) GetRun(id string) (*Run, error) {
	var run Run
	err := s.db.QueryRow(`
		SELECT id, chat, requested_by, granted, skipped, failed, created_at
		FROM provision_runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Chat, &run.RequestedBy, &run.Granted, &run.Skipped, &run.Failed, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provision run: %w", err)
	}
	return &run, nil
}
