package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kolosafo/bookflow/internal/model"
)

// VendorStore holds the metered API records. A vendor's daily counter resets
// lazily: the first touch on a new calendar day zeroes it. User counters do
// not get this treatment; the asymmetry is deliberate.
type VendorStore struct {
	db *sql.DB
}

func NewVendorStore(db *sql.DB) *VendorStore {
	return &VendorStore{db: db}
}

const vendorCols = `id, name, email, plan, daily_usage_limit, daily_usage_count, last_usage_reset, is_active, created_at`

func scanVendor(scanner interface{ Scan(...any) error }) (*model.Vendor, error) {
	var v model.Vendor
	err := scanner.Scan(
		&v.ID, &v.Name, &v.Email, &v.Plan, &v.DailyUsageLimit, &v.DailyUsageCount,
		&v.LastUsageReset, &v.IsActive, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a vendor; the generated id is the API key handed out.
func (s *VendorStore) Create(name, email, plan string, dailyLimit int) (*model.Vendor, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO vendors (id, name, email, plan, daily_usage_limit) VALUES (?, ?, ?, ?, ?)`,
		id, name, email, plan, dailyLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("insert vendor: %w", err)
	}
	return s.GetByID(id)
}

func (s *VendorStore) GetByID(id string) (*model.Vendor, error) {
	row := s.db.QueryRow(`SELECT `+vendorCols+` FROM vendors WHERE id = ?`, id)
	v, err := scanVendor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

// GetActive returns the vendor only if it exists and is active.
func (s *VendorStore) GetActive(id string) (*model.Vendor, error) {
	row := s.db.QueryRow(`SELECT `+vendorCols+` FROM vendors WHERE id = ? AND is_active = 1`, id)
	v, err := scanVendor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active vendor: %w", err)
	}
	return v, nil
}

// ResetIfNewDay zeroes the daily counter when the stored reset date is not
// today. The WHERE guard keeps concurrent resets idempotent.
func (s *VendorStore) ResetIfNewDay(id string, now time.Time) error {
	today := now.UTC().Format("2006-01-02")
	_, err := s.db.Exec(
		`UPDATE vendors SET daily_usage_count = 0, last_usage_reset = ?
		 WHERE id = ? AND last_usage_reset != ?`,
		today, id, today,
	)
	if err != nil {
		return fmt.Errorf("reset vendor usage: %w", err)
	}
	return nil
}

// ReserveDailyUse spends one unit of today's allowance. The conditional
// UPDATE is atomic, so racing requests cannot push the count past the limit.
func (s *VendorStore) ReserveDailyUse(id string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE vendors SET daily_usage_count = daily_usage_count + 1
		 WHERE id = ? AND daily_usage_count < daily_usage_limit`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("reserve vendor use: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// SetDailyLimit changes the vendor's plan-derived allowance (admin path).
func (s *VendorStore) SetDailyLimit(id string, limit int) error {
	_, err := s.db.Exec(`UPDATE vendors SET daily_usage_limit = ? WHERE id = ?`, limit, id)
	if err != nil {
		return fmt.Errorf("set daily limit: %w", err)
	}
	return nil
}

func (s *VendorStore) SetActive(id string, active bool) error {
	_, err := s.db.Exec(`UPDATE vendors SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("set vendor active: %w", err)
	}
	return nil
}

func (s *VendorStore) List() ([]*model.Vendor, error) {
	rows, err := s.db.Query(`SELECT ` + vendorCols + ` FROM vendors ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []*model.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}
