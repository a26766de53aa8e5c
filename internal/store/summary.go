package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kolosafo/bookflow/internal/model"
)

type SummaryStore struct {
	db *sql.DB
}

func NewSummaryStore(db *sql.DB) *SummaryStore {
	return &SummaryStore{db: db}
}

const summaryCols = `id, book_id, user_id, book_title, author, status, analysis, created_at, updated_at`

func scanSummary(scanner interface{ Scan(...any) error }) (*model.BookSummary, error) {
	var bs model.BookSummary
	var userID, author, analysis sql.NullString
	err := scanner.Scan(
		&bs.ID, &bs.BookID, &userID, &bs.BookTitle, &author, &bs.Status, &analysis,
		&bs.CreatedAt, &bs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		bs.UserID = &userID.String
	}
	if author.Valid {
		bs.Author = &author.String
	}
	if analysis.Valid {
		bs.Analysis = &analysis.String
	}
	return &bs, nil
}

// CreatePending registers a summarization request before the job runs. A
// second request for the same book is a no-op and returns the existing row.
func (s *SummaryStore) CreatePending(bookID, userID, bookTitle string, author *string) (*model.BookSummary, error) {
	var a sql.NullString
	if author != nil {
		a = sql.NullString{String: *author, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO book_summaries (book_id, user_id, book_title, author) VALUES (?, ?, ?, ?)
		 ON CONFLICT(book_id) DO NOTHING`,
		bookID, userID, bookTitle, a,
	)
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	return s.GetByBookID(bookID)
}

func (s *SummaryStore) GetByBookID(bookID string) (*model.BookSummary, error) {
	row := s.db.QueryRow(`SELECT `+summaryCols+` FROM book_summaries WHERE book_id = ?`, bookID)
	bs, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return bs, nil
}

// SaveAnalysis stores the generated analysis and flips the row to ready.
func (s *SummaryStore) SaveAnalysis(bookID, analysis string) error {
	_, err := s.db.Exec(
		`UPDATE book_summaries SET status = ?, analysis = ?, updated_at = datetime('now') WHERE book_id = ?`,
		model.SummaryReady, analysis, bookID,
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// MarkFailed records that generation failed; the client learns via polling.
func (s *SummaryStore) MarkFailed(bookID string) error {
	_, err := s.db.Exec(
		`UPDATE book_summaries SET status = ?, updated_at = datetime('now') WHERE book_id = ?`,
		model.SummaryFailed, bookID,
	)
	if err != nil {
		return fmt.Errorf("mark summary failed: %w", err)
	}
	return nil
}

type ROIStore struct {
	db *sql.DB
}

func NewROIStore(db *sql.DB) *ROIStore {
	return &ROIStore{db: db}
}

// Save persists a completed ROI analysis.
func (s *ROIStore) Save(roi *model.BookROI) (*model.BookROI, error) {
	takeaways, err := json.Marshal(roi.RelevantTakeaways)
	if err != nil {
		return nil, fmt.Errorf("marshal takeaways: %w", err)
	}
	var vendorID, author sql.NullString
	if roi.VendorID != nil {
		vendorID = sql.NullString{String: *roi.VendorID, Valid: true}
	}
	if roi.Author != nil {
		author = sql.NullString{String: *roi.Author, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO book_roi (vendor_id, book_title, author, reader_goal, reader_challenge,
		        available_time, roi_score, match_reasoning, relevant_takeaways, time_analysis,
		        estimated_reading_hours, recommendation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		vendorID, roi.BookTitle, author, roi.ReaderGoal, roi.ReaderChallenge,
		roi.AvailableTime, roi.ROIScore, roi.MatchReasoning, string(takeaways),
		roi.TimeAnalysis, roi.EstimatedReadingHours, roi.Recommendation,
	)
	if err != nil {
		return nil, fmt.Errorf("insert book roi: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	roi.ID = id
	return roi, nil
}

// CountForVendor reports how many analyses a vendor has persisted.
func (s *ROIStore) CountForVendor(vendorID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM book_roi WHERE vendor_id = ?`, vendorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count roi rows: %w", err)
	}
	return n, nil
}
