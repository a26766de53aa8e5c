package model

import "time"

// Account status values. "blocked" is checked at login time only; it is never
// entered through a user-facing transition.
const (
	StatusNotActivated = "not activated"
	StatusActivated    = "activated"
	StatusSuspended    = "suspended"
	StatusBlocked      = "blocked"
)

type User struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	PasswordHash         string     `json:"-"`
	DeviceID             *string    `json:"device_id"`
	Interests            []string   `json:"interests"`
	Subscription         string     `json:"subscription"`
	Status               string     `json:"status"`
	IsActive             bool       `json:"is_active"`
	IsStaff              bool       `json:"is_staff"`
	NotificationToken    *string    `json:"notification_token,omitempty"`
	DateSubscribed       *time.Time `json:"date_subscribed"`
	DateSubscriptionEnds *time.Time `json:"date_subscription_ends"`
	FreeTrial            bool       `json:"free_trial"`
	FreeTrialEndDate     *time.Time `json:"free_trial_end_date"`
	CreatedAt            time.Time  `json:"created_at"`
}

// EffectiveSubscription reports the plan an active free trial grants.
func (u *User) EffectiveSubscription() string {
	if u.FreeTrial {
		return "premium"
	}
	return u.Subscription
}

// Usage holds a user's remaining per-counter quota. Counters are refilled only
// by explicit administrative refills, never lazily.
type Usage struct {
	UserID      string    `json:"user_id"`
	Summaries   int       `json:"summaries"`
	Notes       int       `json:"notes"`
	Reminders   int       `json:"reminders"`
	SmartSearch int       `json:"smart_search"`
	UpdatedAt   time.Time `json:"updated_at"`
}
