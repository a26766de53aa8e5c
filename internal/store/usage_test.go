package store

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/kolosafo/bookflow/internal/database"
	"github.com/kolosafo/bookflow/internal/plan"
)

func setupUsageTestDB(t *testing.T) (*sql.DB, *UserStore, *UsageStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, NewUserStore(db), NewUsageStore(db)
}

func createUserWithUsage(t *testing.T, us *UserStore, gs *UsageStore, email, planName string) string {
	t.Helper()
	u, err := us.Create(email, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := gs.Create(u.ID, planName); err != nil {
		t.Fatalf("create usage: %v", err)
	}
	return u.ID
}

func TestUsageReserveUntilExhausted(t *testing.T) {
	_, us, gs := setupUsageTestDB(t)
	id := createUserWithUsage(t, us, gs, "a@x.com", plan.Free)

	// Free plan grants 3 notes.
	for i := 0; i < 3; i++ {
		ok, err := gs.Reserve(id, plan.CounterNotes)
		if err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("reservation %d should succeed", i+1)
		}
	}

	ok, err := gs.Reserve(id, plan.CounterNotes)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if ok {
		t.Error("4th reservation should be rejected")
	}

	usage, err := gs.Get(id)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if usage.Notes != 0 {
		t.Errorf("notes = %d, want 0", usage.Notes)
	}
}

func TestUsageReserveUnknownCounter(t *testing.T) {
	_, us, gs := setupUsageTestDB(t)
	id := createUserWithUsage(t, us, gs, "a@x.com", plan.Free)

	if _, err := gs.Reserve(id, "widgets"); err == nil {
		t.Fatal("expected error for unknown counter")
	}
}

func TestUsageRefill(t *testing.T) {
	_, us, gs := setupUsageTestDB(t)
	id := createUserWithUsage(t, us, gs, "a@x.com", plan.Free)

	if ok, _ := gs.Reserve(id, plan.CounterSummaries); !ok {
		t.Fatal("reserve should succeed")
	}
	if ok, _ := gs.Reserve(id, plan.CounterSummaries); ok {
		t.Fatal("free plan grants a single summary")
	}

	if err := gs.Refill(id, plan.Premium); err != nil {
		t.Fatalf("refill: %v", err)
	}

	usage, err := gs.Get(id)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if usage.Summaries != 15 {
		t.Errorf("summaries after premium refill = %d, want 15", usage.Summaries)
	}
}

// Concurrent reservations must never overdraw: the conditional UPDATE is the
// only mutation path, so at most `limit` of them can win.
func TestUsageReserveConcurrent(t *testing.T) {
	_, us, gs := setupUsageTestDB(t)
	id := createUserWithUsage(t, us, gs, "a@x.com", plan.Free)

	const attempts = 10
	var wg sync.WaitGroup
	granted := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := gs.Reserve(id, plan.CounterSmartSearch)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			granted <- ok
		}()
	}
	wg.Wait()
	close(granted)

	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	if wins != 3 {
		t.Errorf("granted %d reservations, want exactly 3", wins)
	}

	usage, err := gs.Get(id)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if usage.SmartSearch < 0 {
		t.Errorf("smart_search went negative: %d", usage.SmartSearch)
	}
}

func TestUsageRefillAll(t *testing.T) {
	_, us, gs := setupUsageTestDB(t)
	a := createUserWithUsage(t, us, gs, "a@x.com", plan.Free)
	b := createUserWithUsage(t, us, gs, "b@x.com", plan.Free)

	for _, id := range []string{a, b} {
		if ok, _ := gs.Reserve(id, plan.CounterNotes); !ok {
			t.Fatal("reserve should succeed")
		}
	}

	n, err := gs.RefillAll()
	if err != nil {
		t.Fatalf("refill all: %v", err)
	}
	if n != 2 {
		t.Errorf("refilled %d rows, want 2", n)
	}

	usage, err := gs.Get(a)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if usage.Notes != 3 {
		t.Errorf("notes after refill = %d, want 3", usage.Notes)
	}
}
