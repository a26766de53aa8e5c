package store

import (
	"database/sql"
	"fmt"

	"github.com/kolosafo/bookflow/internal/model"
)

type NoteStore struct {
	db *sql.DB
}

func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

func (s *NoteStore) Create(userID, bookTitle, content string) (*model.Note, error) {
	result, err := s.db.Exec(
		`INSERT INTO notes (user_id, book_title, content) VALUES (?, ?, ?)`,
		userID, bookTitle, content,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(
		`SELECT id, user_id, book_title, content, created_at FROM notes WHERE id = ?`, id,
	)
	var n model.Note
	if err := row.Scan(&n.ID, &n.UserID, &n.BookTitle, &n.Content, &n.CreatedAt); err != nil {
		return nil, fmt.Errorf("read note: %w", err)
	}
	return &n, nil
}

func (s *NoteStore) ListByUser(userID string) ([]*model.Note, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, book_title, content, created_at FROM notes
		 WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.BookTitle, &n.Content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}
