package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "user-a")
	c2 := mockClient(hub, "user-b")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "user-a")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "user-a")
	c2 := mockClient(hub, "user-b")
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(SummaryReady("deep-work-cal-newport", "Deep Work"))

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "summary_ready" {
				t.Errorf("expected type summary_ready, got %s", got.Type)
			}
			if got.BookID != "deep-work-cal-newport" {
				t.Errorf("expected book id deep-work-cal-newport, got %s", got.BookID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestSendToUserTargetsOnlyOwner(t *testing.T) {
	hub := NewHub(slog.Default())

	owner1 := mockClient(hub, "user-a")
	owner2 := mockClient(hub, "user-a")
	other := mockClient(hub, "user-b")
	hub.Register(owner1)
	hub.Register(owner2)
	hub.Register(other)

	hub.SendToUser("user-a", SummaryReady("atomic-habits", "Atomic Habits"))

	for _, c := range []*Client{owner1, owner2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.BookID != "atomic-habits" {
				t.Errorf("expected book id atomic-habits, got %s", got.BookID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for owner message")
		}
	}

	select {
	case <-other.send:
		t.Fatal("other user received a targeted message")
	default:
	}

	hub.Unregister(owner1)
	hub.Unregister(owner2)
	hub.Unregister(other)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(SummaryFailed("some-book"))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "user-a")
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(SummaryReady("book", "Book"))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(SummaryReady("dropped", "Dropped"))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Spawn goroutines that register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "user-a")
			hub.Register(c)
			hub.SendToUser("user-a", SummaryReady("book", "Book"))
			// Drain any messages
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
