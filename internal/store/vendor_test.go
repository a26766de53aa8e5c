package store

import (
	"testing"
	"time"

	"github.com/kolosafo/bookflow/internal/database"
)

func setupVendorTestDB(t *testing.T) *VendorStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewVendorStore(db)
}

func TestVendorReserveUntilLimit(t *testing.T) {
	s := setupVendorTestDB(t)

	v, err := s.Create("Acme", "acme@x.com", "free", 3)
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := s.ReserveDailyUse(v.ID)
		if err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("reservation %d should succeed", i+1)
		}
	}

	ok, err := s.ReserveDailyUse(v.ID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if ok {
		t.Error("4th reservation should be rejected at limit 3")
	}
}

func TestVendorDayRolloverResetsCount(t *testing.T) {
	s := setupVendorTestDB(t)

	v, err := s.Create("Acme", "acme@x.com", "free", 3)
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	for i := 0; i < 3; i++ {
		if ok, _ := s.ReserveDailyUse(v.ID); !ok {
			t.Fatal("reserve should succeed")
		}
	}

	// Same day: reset is a no-op, still exhausted.
	now := time.Now()
	if err := s.ResetIfNewDay(v.ID, now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, _ := s.ReserveDailyUse(v.ID); ok {
		t.Error("same-day reset should not clear the counter")
	}

	// New day: counter rolls back to zero.
	if err := s.ResetIfNewDay(v.ID, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, _ := s.ReserveDailyUse(v.ID); !ok {
		t.Error("reservation should succeed after day rollover")
	}

	got, err := s.GetByID(v.ID)
	if err != nil {
		t.Fatalf("get vendor: %v", err)
	}
	if got.DailyUsageCount != 1 {
		t.Errorf("count after rollover + one use = %d, want 1", got.DailyUsageCount)
	}
}

func TestVendorGetActive(t *testing.T) {
	s := setupVendorTestDB(t)

	v, err := s.Create("Acme", "acme@x.com", "free", 1000)
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	got, err := s.GetActive(v.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got == nil {
		t.Fatal("expected active vendor")
	}

	if err := s.SetActive(v.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err = s.GetActive(v.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got != nil {
		t.Error("inactive vendor should not be returned")
	}

	got, err = s.GetActive("no-such-key")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got != nil {
		t.Error("unknown vendor should be nil")
	}
}

func TestVendorDuplicateEmail(t *testing.T) {
	s := setupVendorTestDB(t)

	if _, err := s.Create("Acme", "acme@x.com", "free", 1000); err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	if _, err := s.Create("Acme 2", "acme@x.com", "free", 1000); err == nil {
		t.Fatal("expected error for duplicate vendor email")
	}
}
