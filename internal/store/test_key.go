package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kolosafo/bookflow/internal/model"
)

// TestKeyStore manages bounded-use trial credentials handed to prospective
// vendors. A key is good for five analyses, lifetime, regardless of day.
type TestKeyStore struct {
	db *sql.DB
}

func NewTestKeyStore(db *sql.DB) *TestKeyStore {
	return &TestKeyStore{db: db}
}

const testKeyCols = `id, key, usage_count, is_assigned, is_active, created_at`

func scanTestKey(scanner interface{ Scan(...any) error }) (*model.VendorTestKey, error) {
	var k model.VendorTestKey
	err := scanner.Scan(&k.ID, &k.Key, &k.UsageCount, &k.IsAssigned, &k.IsActive, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// generateTestKey creates a key in the format BF-TEST-XXXXXXXXXXXX.
func generateTestKey() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate test key: %w", err)
	}
	return "BF-TEST-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

func (s *TestKeyStore) Create() (*model.VendorTestKey, error) {
	key, err := generateTestKey()
	if err != nil {
		return nil, err
	}
	result, err := s.db.Exec(`INSERT INTO vendor_test_keys (key) VALUES (?)`, key)
	if err != nil {
		return nil, fmt.Errorf("insert test key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+testKeyCols+` FROM vendor_test_keys WHERE id = ?`, id)
	return scanTestKey(row)
}

func (s *TestKeyStore) GetByKey(key string) (*model.VendorTestKey, error) {
	row := s.db.QueryRow(`SELECT `+testKeyCols+` FROM vendor_test_keys WHERE key = ?`, key)
	k, err := scanTestKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test key: %w", err)
	}
	return k, nil
}

// ReserveUse spends one of the key's five lifetime uses. Atomic: the guard in
// the UPDATE means the 6th concurrent attempt loses no matter the ordering.
func (s *TestKeyStore) ReserveUse(key string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE vendor_test_keys SET usage_count = usage_count + 1
		 WHERE key = ? AND is_active = 1 AND usage_count < ?`,
		key, model.TestKeyMaxUses,
	)
	if err != nil {
		return false, fmt.Errorf("reserve test key use: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// AssignNext marks the first unassigned usable key as assigned and returns
// it. Assigned keys stay assigned; nil means the pool is empty.
func (s *TestKeyStore) AssignNext() (*model.VendorTestKey, error) {
	row := s.db.QueryRow(
		`SELECT `+testKeyCols+` FROM vendor_test_keys
		 WHERE is_assigned = 0 AND is_active = 1 AND usage_count < ? ORDER BY id LIMIT 1`,
		model.TestKeyMaxUses,
	)
	k, err := scanTestKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next unassigned key: %w", err)
	}

	result, err := s.db.Exec(
		`UPDATE vendor_test_keys SET is_assigned = 1 WHERE id = ? AND is_assigned = 0`, k.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("assign test key: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		// Lost the race to another assignment; try again.
		return s.AssignNext()
	}
	k.IsAssigned = true
	return k, nil
}

// Rotate deletes exhausted keys and generates batchSize fresh ones.
func (s *TestKeyStore) Rotate(batchSize int) (deleted int64, created []*model.VendorTestKey, err error) {
	result, err := s.db.Exec(
		`DELETE FROM vendor_test_keys WHERE usage_count >= ?`, model.TestKeyMaxUses,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("delete exhausted keys: %w", err)
	}
	deleted, err = result.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("rows affected: %w", err)
	}

	for i := 0; i < batchSize; i++ {
		k, err := s.Create()
		if err != nil {
			return deleted, created, err
		}
		created = append(created, k)
	}
	return deleted, created, nil
}

func (s *TestKeyStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM vendor_test_keys`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count test keys: %w", err)
	}
	return n, nil
}
