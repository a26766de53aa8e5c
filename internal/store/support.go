package store

import (
	"database/sql"
	"fmt"

	"github.com/kolosafo/bookflow/internal/model"
)

type SupportStore struct {
	db *sql.DB
}

func NewSupportStore(db *sql.DB) *SupportStore {
	return &SupportStore{db: db}
}

func (s *SupportStore) Create(email, message string) (*model.SupportMessage, error) {
	result, err := s.db.Exec(
		`INSERT INTO support_messages (email, message) VALUES (?, ?)`, email, message,
	)
	if err != nil {
		return nil, fmt.Errorf("insert support message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(
		`SELECT id, email, message, is_resolved, created_at FROM support_messages WHERE id = ?`, id,
	)
	var m model.SupportMessage
	if err := row.Scan(&m.ID, &m.Email, &m.Message, &m.IsResolved, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("read support message: %w", err)
	}
	return &m, nil
}

// RecordDeleteFeedback stores the reason given at account deletion.
func (s *SupportStore) RecordDeleteFeedback(reason string, additional *string) error {
	var extra sql.NullString
	if additional != nil {
		extra = sql.NullString{String: *additional, Valid: true}
	}
	if _, err := s.db.Exec(
		`INSERT INTO delete_feedback (reason, additional_feedback) VALUES (?, ?)`, reason, extra,
	); err != nil {
		return fmt.Errorf("insert delete feedback: %w", err)
	}
	return nil
}
