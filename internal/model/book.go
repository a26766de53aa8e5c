package model

import "time"

// Summary statuses.
const (
	SummaryPending = "pending"
	SummaryReady   = "ready"
	SummaryFailed  = "failed"
)

// BookSummary tracks an asynchronous summarization request and its result.
// Analysis holds the raw structured JSON returned by the AI provider.
type BookSummary struct {
	ID        int64     `json:"id"`
	BookID    string    `json:"book_id"`
	UserID    *string   `json:"user_id,omitempty"`
	BookTitle string    `json:"book_title"`
	Author    *string   `json:"author"`
	Status    string    `json:"status"`
	Analysis  *string   `json:"analysis,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ROI recommendation values.
const (
	ROIHighlyRecommended     = "highly_recommended"
	ROIRecommended           = "recommended"
	ROIModeratelyRecommended = "moderately_recommended"
	ROINotRecommended        = "not_recommended"
)

// BookROI is a persisted return-on-investment analysis for a reader's goal.
type BookROI struct {
	ID                    int64     `json:"id"`
	VendorID              *string   `json:"vendor_id,omitempty"`
	BookTitle             string    `json:"book_title"`
	Author                *string   `json:"author"`
	ReaderGoal            string    `json:"reader_goal"`
	ReaderChallenge       string    `json:"reader_challenge"`
	AvailableTime         string    `json:"available_time"`
	ROIScore              int       `json:"roi_score"`
	MatchReasoning        string    `json:"match_reasoning"`
	RelevantTakeaways     []string  `json:"relevant_takeaways"`
	TimeAnalysis          string    `json:"time_analysis"`
	EstimatedReadingHours float64   `json:"estimated_reading_hours"`
	Recommendation        string    `json:"recommendation"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// Note is a user's note on a book, metered against the notes counter.
type Note struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	BookTitle string    `json:"book_title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
