package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
)

type Client struct {
	serverToken string
	fromEmail   string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

// UpdateConfig replaces the token and sender at runtime.
func (c *Client) UpdateConfig(serverToken, fromEmail string) {
	c.serverToken = serverToken
	c.fromEmail = fromEmail
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

var thankYouLines = []string{
	"Thanks for reading with BookFlow.",
	"We're glad you're here.",
	"Happy reading!",
	"Your next great book is waiting.",
}

func thankYou() string {
	return thankYouLines[rand.Intn(len(thankYouLines))]
}

// SendVerificationCode emails the 4-digit code issued at signup.
func (c *Client) SendVerificationCode(toEmail, code string) error {
	subject := "Verify your BookFlow email"
	textBody := fmt.Sprintf("Your BookFlow verification code is %s.\n\nEnter it in the app to activate your account.\n\n%s", code, thankYou())
	htmlBody := fmt.Sprintf(
		`<p>Your BookFlow verification code is <strong>%s</strong>.</p><p>Enter it in the app to activate your account.</p><p>%s</p>`,
		code, thankYou(),
	)
	return c.send(toEmail, subject, htmlBody, textBody)
}

// SendPasswordResetCode emails the code for a forgot-password flow.
func (c *Client) SendPasswordResetCode(toEmail, code string) error {
	subject := "Reset your BookFlow password"
	textBody := fmt.Sprintf("Your BookFlow password reset code is %s.\n\nIf you didn't request this, you can ignore this email.", code)
	htmlBody := fmt.Sprintf(
		`<p>Your BookFlow password reset code is <strong>%s</strong>.</p><p>If you didn't request this, you can ignore this email.</p>`,
		code,
	)
	return c.send(toEmail, subject, htmlBody, textBody)
}

// SendFreeTrialGranted tells a user their premium trial is live.
func (c *Client) SendFreeTrialGranted(toEmail, firstName string) error {
	subject := "Your BookFlow premium trial has started"
	textBody := fmt.Sprintf("Hi %s,\n\nYour free premium trial is now active. Enjoy full summaries, smart search and more.\n\n%s", firstName, thankYou())
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>Your free premium trial is now active. Enjoy full summaries, smart search and more.</p><p>%s</p>`,
		firstName, thankYou(),
	)
	return c.send(toEmail, subject, htmlBody, textBody)
}

func (c *Client) send(toEmail, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.postmarkapp.com/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
