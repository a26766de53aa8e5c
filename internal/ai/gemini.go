// Package ai talks to the Gemini generateContent API with structured JSON
// output. Every call supplies a response schema; a response that fails to
// parse against it is an upstream error the caller must surface, not swallow.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultModel = "gemini-2.5-flash"

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the API endpoint (tests point this at a local server).
func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

func WithModel(m string) Option {
	return func(cl *Client) {
		cl.model = m
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    "https://generativelanguage.googleapis.com",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content      `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("gemini API status %d: %s", e.status, e.body)
}

// generate runs a system prompt + user prompt pair and decodes the JSON
// payload into out. Transient upstream failures (transport errors, 429, 5xx)
// are retried with backoff; a malformed payload is returned as-is so the
// caller can log the raw response.
func (c *Client) generate(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	if !c.Configured() {
		return fmt.Errorf("ai client not configured: missing API key")
	}

	reqBody := generateRequest{
		Contents: []content{
			{Role: "model", Parts: []part{{Text: systemPrompt}}},
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   schema,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var raw []byte
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("call gemini: %w", err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read response: %w", err))
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(&httpStatusError{status: resp.StatusCode, body: truncate(data)})
		}
		if resp.StatusCode != http.StatusOK {
			return &httpStatusError{status: resp.StatusCode, body: truncate(data)}
		}
		raw = data
		return nil
	})
	if err != nil {
		return err
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("decode gemini envelope: %w (raw: %s)", err, truncate(raw))
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("gemini returned no candidates (raw: %s)", truncate(raw))
	}

	text := gr.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("parse structured output: %w (raw: %s)", err, truncate([]byte(text)))
	}
	return nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
