package model

import "time"

// Vendor is a third-party API consumer. Its ID doubles as the API key passed
// in the request path. Daily usage resets lazily when the stored reset date
// falls behind the current day.
type Vendor struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Plan            string    `json:"plan"`
	DailyUsageLimit int       `json:"daily_usage_limit"`
	DailyUsageCount int       `json:"daily_usage_count"`
	LastUsageReset  string    `json:"last_usage_reset"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// VendorAccount is the credentialed login identity behind a Vendor. The
// Vendor API record is only created once the account verifies its email.
type VendorAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CompanyName  string    `json:"company_name"`
	WebsiteURL   *string   `json:"website_url"`
	Status       string    `json:"status"`
	IsActive     bool      `json:"is_active"`
	VendorID     *string   `json:"vendor_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TestKeyMaxUses is the lifetime cap on a trial key.
const TestKeyMaxUses = 5

// VendorTestKey is a bounded-use trial credential handed to prospective
// vendors. Once assigned to an outreach target it is never reassigned.
type VendorTestKey struct {
	ID         int64     `json:"id"`
	Key        string    `json:"key"`
	UsageCount int       `json:"usage_count"`
	IsAssigned bool      `json:"is_assigned"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Usable reports whether the key still has trial uses left.
func (k *VendorTestKey) Usable() bool {
	return k.IsActive && k.UsageCount < TestKeyMaxUses
}
