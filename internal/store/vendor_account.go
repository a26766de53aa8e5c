package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kolosafo/bookflow/internal/model"
)

type VendorAccountStore struct {
	db *sql.DB
}

func NewVendorAccountStore(db *sql.DB) *VendorAccountStore {
	return &VendorAccountStore{db: db}
}

const vendorAccountCols = `id, email, password_hash, company_name, website_url, status, is_active, vendor_id, created_at, updated_at`

func scanVendorAccount(scanner interface{ Scan(...any) error }) (*model.VendorAccount, error) {
	var a model.VendorAccount
	var websiteURL, vendorID sql.NullString
	err := scanner.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.CompanyName, &websiteURL,
		&a.Status, &a.IsActive, &vendorID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if websiteURL.Valid {
		a.WebsiteURL = &websiteURL.String
	}
	if vendorID.Valid {
		a.VendorID = &vendorID.String
	}
	return &a, nil
}

func (s *VendorAccountStore) Create(email, passwordHash, companyName string, websiteURL *string) (*model.VendorAccount, error) {
	id := uuid.NewString()
	var site sql.NullString
	if websiteURL != nil {
		site = sql.NullString{String: *websiteURL, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO vendor_accounts (id, email, password_hash, company_name, website_url) VALUES (?, ?, ?, ?, ?)`,
		id, email, passwordHash, companyName, site,
	)
	if err != nil {
		return nil, fmt.Errorf("insert vendor account: %w", err)
	}
	return s.GetByID(id)
}

func (s *VendorAccountStore) GetByID(id string) (*model.VendorAccount, error) {
	row := s.db.QueryRow(`SELECT `+vendorAccountCols+` FROM vendor_accounts WHERE id = ?`, id)
	a, err := scanVendorAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor account: %w", err)
	}
	return a, nil
}

func (s *VendorAccountStore) GetByEmail(email string) (*model.VendorAccount, error) {
	row := s.db.QueryRow(`SELECT `+vendorAccountCols+` FROM vendor_accounts WHERE email = ?`, email)
	a, err := scanVendorAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor account by email: %w", err)
	}
	return a, nil
}

// Activate transitions the account to activated and links its Vendor record.
func (s *VendorAccountStore) Activate(id, vendorID string) error {
	_, err := s.db.Exec(
		`UPDATE vendor_accounts SET status = ?, vendor_id = ?, updated_at = datetime('now') WHERE id = ?`,
		model.StatusActivated, vendorID, id,
	)
	if err != nil {
		return fmt.Errorf("activate vendor account: %w", err)
	}
	return nil
}
