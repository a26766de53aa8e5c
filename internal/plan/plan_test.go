package plan

import "testing"

func TestUserLimits(t *testing.T) {
	l, err := UserLimits(Free)
	if err != nil {
		t.Fatalf("free plan: %v", err)
	}
	if l.Summaries != 1 || l.Notes != 3 || l.Reminders != 2 || l.SmartSearch != 3 {
		t.Errorf("free limits = %+v", l)
	}

	l, err = UserLimits(Scholar)
	if err != nil {
		t.Fatalf("scholar plan: %v", err)
	}
	if l.Summaries != 50 || l.SmartSearch != 70 {
		t.Errorf("scholar limits = %+v", l)
	}
}

func TestUserLimitsUnknownPlan(t *testing.T) {
	if _, err := UserLimits("platinum"); err == nil {
		t.Fatal("expected error for unknown plan")
	}
	if ValidUserPlan("platinum") {
		t.Error("platinum should not be a valid plan")
	}
	if !ValidUserPlan(Premium) {
		t.Error("premium should be a valid plan")
	}
}

func TestVendorDailyLimit(t *testing.T) {
	limit, err := VendorDailyLimit(VendorFree)
	if err != nil {
		t.Fatalf("free vendor plan: %v", err)
	}
	if limit != 1000 {
		t.Errorf("free vendor limit = %d, want 1000", limit)
	}

	if _, err := VendorDailyLimit("gold"); err == nil {
		t.Fatal("expected error for unknown vendor plan")
	}
}
