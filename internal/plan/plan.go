// Package plan holds the static subscription tables. Limits are looked up by
// plan name; callers must treat an unknown plan as a hard error rather than
// falling back to a default tier.
package plan

import "fmt"

// User plan names.
const (
	Free    = "free"
	Basic   = "basic"
	Premium = "premium"
	Scholar = "scholar"
)

// Counter names metered against a user plan.
const (
	CounterSummaries   = "summaries"
	CounterNotes       = "notes"
	CounterReminders   = "reminders"
	CounterSmartSearch = "smart_search"
)

// Limits is the per-counter allowance a plan grants.
type Limits struct {
	Summaries   int `json:"summaries"`
	Notes       int `json:"notes"`
	Reminders   int `json:"reminders"`
	SmartSearch int `json:"smart_search"`
}

var userPlans = map[string]Limits{
	Free:    {Summaries: 1, Notes: 3, Reminders: 2, SmartSearch: 3},
	Basic:   {Summaries: 5, Notes: 15, Reminders: 5, SmartSearch: 10},
	Premium: {Summaries: 15, Notes: 30, Reminders: 10, SmartSearch: 25},
	Scholar: {Summaries: 50, Notes: 150, Reminders: 150, SmartSearch: 70},
}

// UserLimits returns the counter allowances for a user plan.
func UserLimits(plan string) (Limits, error) {
	l, ok := userPlans[plan]
	if !ok {
		return Limits{}, fmt.Errorf("unknown user plan %q", plan)
	}
	return l, nil
}

// ValidUserPlan reports whether the plan name exists in the user table.
func ValidUserPlan(plan string) bool {
	_, ok := userPlans[plan]
	return ok
}

// Vendor plan names.
const (
	VendorFree       = "free"
	VendorPro        = "pro"
	VendorEnterprise = "enterprise"
)

var vendorPlans = map[string]int{
	VendorFree:       1000,
	VendorPro:        10000,
	VendorEnterprise: 100000,
}

// VendorDailyLimit returns the daily call allowance for a vendor plan.
func VendorDailyLimit(plan string) (int, error) {
	limit, ok := vendorPlans[plan]
	if !ok {
		return 0, fmt.Errorf("unknown vendor plan %q", plan)
	}
	return limit, nil
}
