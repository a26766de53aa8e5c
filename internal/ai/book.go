package ai

import (
	"context"
	"fmt"

	"github.com/kolosafo/bookflow/internal/model"
)

// BookAnalysis is the full summary payload generated for a book.
type BookAnalysis struct {
	MainArgument    string       `json:"main_argument"`
	KeyInsights     []KeyInsight `json:"key_insights"`
	ActionableSteps []string     `json:"actionable_steps"`
	OnePageSummary  string       `json:"one_page_summary"`
}

type KeyInsight struct {
	Insight     string `json:"insight"`
	Explanation string `json:"explanation"`
}

// BookROI scores how worthwhile a book is for a reader profile.
type BookROI struct {
	ROIScore              int      `json:"roi_score"`
	MatchReasoning        string   `json:"match_reasoning"`
	RelevantTakeaways     []string `json:"relevant_takeaways"`
	TimeAnalysis          string   `json:"time_analysis"`
	EstimatedReadingHours float64  `json:"estimated_reading_hours"`
	Recommendation        string   `json:"recommendation"`
}

// ROIRequest is the reader profile a vendor submits for scoring.
type ROIRequest struct {
	BookTitle       string `json:"book_title"`
	Author          string `json:"author"`
	ReaderGoal      string `json:"reader_goal"`
	ReaderChallenge string `json:"reader_challenge"`
	AvailableTime   string `json:"available_time"`
}

// SearchResult is one book suggestion from a natural-language search.
type SearchResult struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Themes      []string `json:"themes"`
}

func strProp() map[string]any {
	return map[string]any{"type": "string"}
}

func strArrayProp() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

var analysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"main_argument": strProp(),
		"key_insights": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"insight":     strProp(),
					"explanation": strProp(),
				},
				"required": []string{"insight", "explanation"},
			},
		},
		"actionable_steps": strArrayProp(),
		"one_page_summary": strProp(),
	},
	"required": []string{"main_argument", "key_insights", "actionable_steps", "one_page_summary"},
}

var roiSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"roi_score":               map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"match_reasoning":         strProp(),
		"relevant_takeaways":      strArrayProp(),
		"time_analysis":           strProp(),
		"estimated_reading_hours": map[string]any{"type": "number"},
		"recommendation": map[string]any{
			"type": "string",
			"enum": []string{
				model.ROIHighlyRecommended,
				model.ROIRecommended,
				model.ROIModeratelyRecommended,
				model.ROINotRecommended,
			},
		},
	},
	"required": []string{"roi_score", "match_reasoning", "relevant_takeaways", "time_analysis", "estimated_reading_hours", "recommendation"},
}

var searchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"results": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       strProp(),
					"author":      strProp(),
					"description": strProp(),
					"themes":      strArrayProp(),
				},
				"required": []string{"title", "author", "description"},
			},
		},
	},
	"required": []string{"results"},
}

const analysisSystemPrompt = `You are a book analyst. Given a book title and
author, produce a faithful deep analysis of the book: its main argument, the
key insights with explanations, concrete actionable steps a reader can take,
and a one page summary. Be specific to the actual book, never generic.`

const roiSystemPrompt = `You are a reading-return analyst. Given a book and a
reader profile, estimate how much value this specific reader gets from this
specific book. Score 0-100, explain the match, pick the takeaways most
relevant to the reader's goal and challenge, estimate reading time against
their availability, and recommend one of: highly_recommended, recommended,
moderately_recommended, not_recommended.`

const searchSystemPrompt = `You are a book discovery assistant. Given a
natural-language description of what someone wants to read or learn, suggest
real published books that fit. Only suggest books that actually exist.`

// AnalyzeBook generates a full summary for a book.
func (c *Client) AnalyzeBook(ctx context.Context, title, author string) (*BookAnalysis, error) {
	prompt := fmt.Sprintf("Book: %q by %s", title, author)
	var out BookAnalysis
	if err := c.generate(ctx, analysisSystemPrompt, prompt, analysisSchema, &out); err != nil {
		return nil, fmt.Errorf("analyze book: %w", err)
	}
	return &out, nil
}

// ScoreROI evaluates a book against a reader profile.
func (c *Client) ScoreROI(ctx context.Context, req ROIRequest) (*BookROI, error) {
	prompt := fmt.Sprintf(
		"Book: %q by %s\nReader goal: %s\nReader challenge: %s\nAvailable reading time: %s",
		req.BookTitle, req.Author, req.ReaderGoal, req.ReaderChallenge, req.AvailableTime,
	)
	var out BookROI
	if err := c.generate(ctx, roiSystemPrompt, prompt, roiSchema, &out); err != nil {
		return nil, fmt.Errorf("score roi: %w", err)
	}
	return &out, nil
}

// SearchBooks turns a natural-language query into book suggestions.
func (c *Client) SearchBooks(ctx context.Context, query string) ([]SearchResult, error) {
	var out struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.generate(ctx, searchSystemPrompt, query, searchSchema, &out); err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return out.Results, nil
}
