// Package push sends mobile notifications through the Expo push service.
// Delivery is best effort: callers log failures and move on.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidToken is returned when Expo reports the device token is no
// longer registered. Callers should clear the stored token.
var ErrInvalidToken = errors.New("push token no longer registered")

// Message is one notification addressed to a device token.
type Message struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the Expo endpoint (tests point this at a local server).
func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    "https://exp.host",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// Send pushes a single notification. A token that Expo rejects as
// unregistered maps to ErrInvalidToken.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !strings.HasPrefix(msg.To, "ExponentPushToken[") {
		return fmt.Errorf("%w: %q is not an Expo token", ErrInvalidToken, msg.To)
	}
	if msg.Sound == "" {
		msg.Sound = "default"
	}

	body, err := json.Marshal([]Message{msg})
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/--/api/v2/push/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("expo push service returned %d", resp.StatusCode)
	}

	var er expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	for _, ticket := range er.Data {
		if ticket.Status == "error" {
			if ticket.Details.Error == "DeviceNotRegistered" {
				return ErrInvalidToken
			}
			return fmt.Errorf("expo push error: %s", ticket.Message)
		}
	}
	return nil
}
