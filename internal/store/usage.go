package store

import (
	"database/sql"
	"fmt"

	"github.com/kolosafo/bookflow/internal/model"
	"github.com/kolosafo/bookflow/internal/plan"
)

// UsageStore meters user actions against plan counters. Counters only go
// down during normal operation; they are refilled by explicit administrative
// refills, never lazily on access.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

var counterColumns = map[string]string{
	plan.CounterSummaries:   "summaries",
	plan.CounterNotes:       "notes",
	plan.CounterReminders:   "reminders",
	plan.CounterSmartSearch: "smart_search",
}

// Create seeds a usage row with the plan's full allowance.
func (s *UsageStore) Create(userID, planName string) error {
	limits, err := plan.UserLimits(planName)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO usage (user_id, summaries, notes, reminders, smart_search) VALUES (?, ?, ?, ?, ?)`,
		userID, limits.Summaries, limits.Notes, limits.Reminders, limits.SmartSearch,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (s *UsageStore) Get(userID string) (*model.Usage, error) {
	row := s.db.QueryRow(
		`SELECT user_id, summaries, notes, reminders, smart_search, updated_at FROM usage WHERE user_id = ?`,
		userID,
	)
	var u model.Usage
	err := row.Scan(&u.UserID, &u.Summaries, &u.Notes, &u.Reminders, &u.SmartSearch, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return &u, nil
}

// Reserve spends one unit of the named counter. The conditional UPDATE is the
// whole reservation: it only fires while the counter is positive, so two
// racing requests can never drive it negative.
func (s *UsageStore) Reserve(userID, counter string) (bool, error) {
	col, ok := counterColumns[counter]
	if !ok {
		return false, fmt.Errorf("unknown counter %q", counter)
	}

	result, err := s.db.Exec(
		`UPDATE usage SET `+col+` = `+col+` - 1, updated_at = datetime('now')
		 WHERE user_id = ? AND `+col+` > 0`,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", counter, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Refill resets all counters to the plan's allowance.
func (s *UsageStore) Refill(userID, planName string) error {
	limits, err := plan.UserLimits(planName)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE usage SET summaries = ?, notes = ?, reminders = ?, smart_search = ?, updated_at = datetime('now')
		 WHERE user_id = ?`,
		limits.Summaries, limits.Notes, limits.Reminders, limits.SmartSearch, userID,
	)
	if err != nil {
		return fmt.Errorf("refill usage: %w", err)
	}
	return nil
}

// RefillAll resets every user's counters to their current plan's allowance.
// Run as a maintenance job; it walks rows sequentially and does not pretend
// to be transactional against concurrent reservations.
func (s *UsageStore) RefillAll() (int, error) {
	rows, err := s.db.Query(`SELECT u.user_id, usr.subscription FROM usage u JOIN users usr ON usr.id = u.user_id`)
	if err != nil {
		return 0, fmt.Errorf("list usage rows: %w", err)
	}
	defer rows.Close()

	type pair struct{ id, plan string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.id, &p.plan); err != nil {
			return 0, fmt.Errorf("scan usage row: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate usage rows: %w", err)
	}

	count := 0
	for _, p := range pairs {
		if err := s.Refill(p.id, p.plan); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
