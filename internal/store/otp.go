package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/kolosafo/bookflow/internal/model"
)

type OTPStore struct {
	db *sql.DB
}

func NewOTPStore(db *sql.DB) *OTPStore {
	return &OTPStore{db: db}
}

// generateCode returns a 4-digit numeric code (1000-9999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}

// Issue persists a fresh code for the identity and purpose. Previously issued
// codes are left outstanding; callers that want them gone delete them first.
func (s *OTPStore) Issue(email, purpose string) (*model.OTPCode, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		`INSERT INTO otp_codes (email, code, purpose) VALUES (?, ?, ?)`,
		email, code, purpose,
	)
	if err != nil {
		return nil, fmt.Errorf("insert otp: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(
		`SELECT id, email, code, purpose, created_at FROM otp_codes WHERE id = ?`, id,
	)
	var otp model.OTPCode
	if err := row.Scan(&otp.ID, &otp.Email, &otp.Code, &otp.Purpose, &otp.CreatedAt); err != nil {
		return nil, fmt.Errorf("read otp: %w", err)
	}
	return &otp, nil
}

// Validate consumes a code matching all three fields. The single DELETE makes
// consumption exactly-once: of two concurrent validations only one can remove
// the row. The result is an opaque boolean; callers never learn whether the
// code, the purpose, or the identity was wrong.
func (s *OTPStore) Validate(email, code, purpose string) (bool, error) {
	result, err := s.db.Exec(
		`DELETE FROM otp_codes WHERE id = (
			SELECT id FROM otp_codes WHERE email = ? AND code = ? AND purpose = ? LIMIT 1
		)`,
		email, code, purpose,
	)
	if err != nil {
		return false, fmt.Errorf("validate otp: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteLatest removes the most recently issued outstanding code for the
// identity and purpose, if any. Used before a resend so the old code dies.
func (s *OTPStore) DeleteLatest(email, purpose string) error {
	_, err := s.db.Exec(
		`DELETE FROM otp_codes WHERE id = (
			SELECT id FROM otp_codes WHERE email = ? AND purpose = ? ORDER BY id DESC LIMIT 1
		)`,
		email, purpose,
	)
	if err != nil {
		return fmt.Errorf("delete latest otp: %w", err)
	}
	return nil
}

// DeleteOlderThan sweeps codes older than ttl and returns how many went.
// Codes are otherwise valid indefinitely; this sweep is the only expiry.
func (s *OTPStore) DeleteOlderThan(ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	result, err := s.db.Exec(`DELETE FROM otp_codes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep otps: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// CountByEmail returns how many codes are outstanding for an identity.
func (s *OTPStore) CountByEmail(email, purpose string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM otp_codes WHERE email = ? AND purpose = ?`, email, purpose,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count otps: %w", err)
	}
	return n, nil
}

// LatestCode returns the most recent outstanding code for an identity, or nil.
func (s *OTPStore) LatestCode(email, purpose string) (*model.OTPCode, error) {
	row := s.db.QueryRow(
		`SELECT id, email, code, purpose, created_at FROM otp_codes
		 WHERE email = ? AND purpose = ? ORDER BY id DESC LIMIT 1`,
		email, purpose,
	)
	var otp model.OTPCode
	err := row.Scan(&otp.ID, &otp.Email, &otp.Code, &otp.Purpose, &otp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest otp: %w", err)
	}
	return &otp, nil
}
