package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kolosafo/bookflow/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, password_hash, device_id, interests, subscription, status,
	is_active, is_staff, notification_token, date_subscribed, date_subscription_ends,
	free_trial, free_trial_end_date, created_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var deviceID, notifToken sql.NullString
	var interests string
	var dateSubscribed, subEnds, trialEnd sql.NullString

	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &deviceID, &interests, &u.Subscription,
		&u.Status, &u.IsActive, &u.IsStaff, &notifToken, &dateSubscribed, &subEnds,
		&u.FreeTrial, &trialEnd, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		u.DeviceID = &deviceID.String
	}
	if notifToken.Valid {
		u.NotificationToken = &notifToken.String
	}
	if u.DateSubscribed, err = parseDate(dateSubscribed); err != nil {
		return nil, err
	}
	if u.DateSubscriptionEnds, err = parseDate(subEnds); err != nil {
		return nil, err
	}
	if u.FreeTrialEndDate, err = parseDate(trialEnd); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(interests), &u.Interests); err != nil {
		u.Interests = nil
	}
	return &u, nil
}

// parseDate converts a stored YYYY-MM-DD column value. The date columns are
// TEXT, so the driver hands them back as strings and the conversion happens
// here.
func parseDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", v.String, err)
	}
	return &t, nil
}

// Create inserts a new user in the "not activated" state.
func (s *UserStore) Create(email, passwordHash string) (*model.User, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		id, email, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE users SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash and, when deviceID is non-nil,
// binds the account to that device.
func (s *UserStore) UpdatePassword(id, passwordHash string, deviceID *string) error {
	var err error
	if deviceID != nil {
		_, err = s.db.Exec(
			`UPDATE users SET password_hash = ?, device_id = ? WHERE id = ?`,
			passwordHash, *deviceID, id,
		)
	} else {
		_, err = s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	}
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *UserStore) UpdateInterests(id string, interests []string) error {
	data, err := json.Marshal(interests)
	if err != nil {
		return fmt.Errorf("marshal interests: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE users SET interests = ? WHERE id = ?`, string(data), id); err != nil {
		return fmt.Errorf("update interests: %w", err)
	}
	return nil
}

func (s *UserStore) UpdateDeviceID(id, deviceID string) error {
	_, err := s.db.Exec(`UPDATE users SET device_id = ? WHERE id = ?`, deviceID, id)
	if err != nil {
		return fmt.Errorf("update device id: %w", err)
	}
	return nil
}

func (s *UserStore) UpdateNotificationToken(id, token string) error {
	_, err := s.db.Exec(`UPDATE users SET notification_token = ? WHERE id = ?`, token, id)
	if err != nil {
		return fmt.Errorf("update notification token: %w", err)
	}
	return nil
}

// GrantFreeTrial marks the account as trialing until the given date.
func (s *UserStore) GrantFreeTrial(id string, until time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET free_trial = 1, free_trial_end_date = ? WHERE id = ?`,
		until.UTC().Format("2006-01-02"), id,
	)
	if err != nil {
		return fmt.Errorf("grant free trial: %w", err)
	}
	return nil
}

// SetSubscription assigns a plan with its active window.
func (s *UserStore) SetSubscription(id, subscription string, from, until time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET subscription = ?, date_subscribed = ?, date_subscription_ends = ? WHERE id = ?`,
		subscription, from.UTC().Format("2006-01-02"), until.UTC().Format("2006-01-02"), id,
	)
	if err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}
	return nil
}

// ExpireLapsed reverts lapsed trials and subscriptions to the free plan and
// returns the ids touched, so the caller can refill their counters.
func (s *UserStore) ExpireLapsed(today time.Time) ([]string, error) {
	day := today.UTC().Format("2006-01-02")
	rows, err := s.db.Query(
		`SELECT id FROM users
		 WHERE (free_trial = 1 AND free_trial_end_date < ?)
		    OR (subscription != 'free' AND date_subscription_ends IS NOT NULL AND date_subscription_ends < ?)`,
		day, day,
	)
	if err != nil {
		return nil, fmt.Errorf("list lapsed users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lapsed user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lapsed users: %w", err)
	}

	for _, id := range ids {
		if _, err := s.db.Exec(
			`UPDATE users SET free_trial = 0, free_trial_end_date = NULL,
			        subscription = 'free', date_subscribed = NULL, date_subscription_ends = NULL
			 WHERE id = ?`, id,
		); err != nil {
			return nil, fmt.Errorf("expire user %s: %w", id, err)
		}
	}
	return ids, nil
}

// Delete removes the user; owned rows cascade through foreign keys.
func (s *UserStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
