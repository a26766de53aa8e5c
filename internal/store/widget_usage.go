package store

import (
	"database/sql"
	"fmt"
	"time"
)

// WidgetUsageLimit caps trial-widget analyses across all keys per day.
const WidgetUsageLimit = 120

// WidgetUsageStore tracks the global daily counter behind the vendor trial
// endpoint. One row per calendar day; rollover happens by date key, there is
// no reset job.
type WidgetUsageStore struct {
	db *sql.DB
}

func NewWidgetUsageStore(db *sql.DB) *WidgetUsageStore {
	return &WidgetUsageStore{db: db}
}

// ReserveUse spends one unit of today's global allowance. The upsert creates
// the day's row on first touch; the guarded UPDATE makes the 121st attempt
// lose atomically rather than get-or-create-then-check.
func (s *WidgetUsageStore) ReserveUse(now time.Time) (bool, error) {
	day := now.UTC().Format("2006-01-02")

	if _, err := s.db.Exec(
		`INSERT INTO widget_test_usage (date, total_count) VALUES (?, 0)
		 ON CONFLICT(date) DO NOTHING`,
		day,
	); err != nil {
		return false, fmt.Errorf("ensure widget usage row: %w", err)
	}

	result, err := s.db.Exec(
		`UPDATE widget_test_usage SET total_count = total_count + 1
		 WHERE date = ? AND total_count < ?`,
		day, WidgetUsageLimit,
	)
	if err != nil {
		return false, fmt.Errorf("reserve widget use: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// CountForDay returns the day's total, zero if no row exists yet.
func (s *WidgetUsageStore) CountForDay(now time.Time) (int, error) {
	day := now.UTC().Format("2006-01-02")
	var n int
	err := s.db.QueryRow(`SELECT total_count FROM widget_test_usage WHERE date = ?`, day).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("widget usage count: %w", err)
	}
	return n, nil
}
