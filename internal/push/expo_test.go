package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendOK(t *testing.T) {
	var received []Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/--/api/v2/push/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"data": [{"status": "ok"}]}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	err := client.Send(context.Background(), Message{
		To:    "ExponentPushToken[abc123]",
		Title: "Summary ready",
		Body:  "Your summary of Deep Work is ready.",
		Data:  map[string]any{"book_id": "deep-work-cal-newport"},
	})
	if err != nil {
		t.Fatalf("send push: %v", err)
	}

	if len(received) != 1 {
		t.Fatalf("expected 1 message, got %d", len(received))
	}
	if received[0].To != "ExponentPushToken[abc123]" {
		t.Errorf("To = %q", received[0].To)
	}
	if received[0].Sound != "default" {
		t.Errorf("Sound = %q, want default", received[0].Sound)
	}
}

func TestSendDeviceNotRegistered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"status": "error", "message": "gone", "details": {"error": "DeviceNotRegistered"}}]}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	err := client.Send(context.Background(), Message{To: "ExponentPushToken[stale]", Title: "hi", Body: "there"})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSendRejectsNonExpoToken(t *testing.T) {
	client := NewClient()
	err := client.Send(context.Background(), Message{To: "raw-apns-token", Title: "hi", Body: "there"})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSendServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	err := client.Send(context.Background(), Message{To: "ExponentPushToken[abc]", Title: "hi", Body: "there"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}
