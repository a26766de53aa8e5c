package model

import "time"

type SupportMessage struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Message    string    `json:"message"`
	IsResolved bool      `json:"is_resolved"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeleteFeedback records why an account was deleted. The account row itself
// is gone by the time this is written.
type DeleteFeedback struct {
	ID                 int64     `json:"id"`
	Reason             string    `json:"reason"`
	AdditionalFeedback *string   `json:"additional_feedback,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
