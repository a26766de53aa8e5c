package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendVerificationCode(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@bookflow.app")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	err := client.SendVerificationCode("alice@example.com", "4821")
	if err != nil {
		t.Fatalf("send verification code: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", received.To, "alice@example.com")
	}
	if received.From != "noreply@bookflow.app" {
		t.Errorf("From = %q, want %q", received.From, "noreply@bookflow.app")
	}
	if !strings.Contains(received.TextBody, "4821") {
		t.Errorf("text body missing code: %q", received.TextBody)
	}
	if received.Subject != "Verify your BookFlow email" {
		t.Errorf("Subject = %q, want verification subject", received.Subject)
	}
}

func TestSendPasswordResetCode(t *testing.T) {
	var received postmarkEmail

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@bookflow.app")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	if err := client.SendPasswordResetCode("bob@example.com", "9170"); err != nil {
		t.Fatalf("send reset code: %v", err)
	}
	if !strings.Contains(received.TextBody, "9170") {
		t.Errorf("text body missing code: %q", received.TextBody)
	}
	if received.Subject != "Reset your BookFlow password" {
		t.Errorf("Subject = %q, want reset subject", received.Subject)
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@bookflow.app")

	if err := client.SendVerificationCode("alice@example.com", "1234"); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

func TestSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@bookflow.app")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	if err := client.SendFreeTrialGranted("alice@example.com", "Alice"); err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestUpdateConfig(t *testing.T) {
	client := NewClient("", "")
	if client.Configured() {
		t.Error("expected Configured() = false initially")
	}

	client.UpdateConfig("new-token", "new@bookflow.app")
	if !client.Configured() {
		t.Error("expected Configured() = true after UpdateConfig")
	}

	client.UpdateConfig("", "")
	if client.Configured() {
		t.Error("expected Configured() = false after clearing")
	}
}

// rewriteTransport redirects all requests to a test server URL.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.target[len("http://"):]
	return t.base.RoundTrip(req)
}
