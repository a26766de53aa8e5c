package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kolosafo/bookflow/internal/ai"
	"github.com/kolosafo/bookflow/internal/apperr"
	"github.com/kolosafo/bookflow/internal/auth"
	"github.com/kolosafo/bookflow/internal/dispatch"
	"github.com/kolosafo/bookflow/internal/model"
	"github.com/kolosafo/bookflow/internal/plan"
	"github.com/kolosafo/bookflow/internal/push"
	"github.com/kolosafo/bookflow/internal/store"
	"github.com/kolosafo/bookflow/internal/validate"
	"github.com/kolosafo/bookflow/internal/websocket"
)

// Dispatcher handler names for deferred book work.
const (
	JobSummarizeBook   = "summarize_book"
	JobReadingReminder = "reading_reminder"
)

// summarizeDelay gives the client time to navigate before the job fires.
const summarizeDelay = 2 * time.Second

type BooksHandler struct {
	users      *store.UserStore
	usage      *store.UsageStore
	summaries  *store.SummaryStore
	notes      *store.NoteStore
	ai         *ai.Client
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewBooksHandler(
	users *store.UserStore,
	usage *store.UsageStore,
	summaries *store.SummaryStore,
	notes *store.NoteStore,
	aiClient *ai.Client,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
) *BooksHandler {
	return &BooksHandler{
		users:      users,
		usage:      usage,
		summaries:  summaries,
		notes:      notes,
		ai:         aiClient,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// BookID derives the stable identifier a title+author pair maps to. The same
// book requested by different users shares one summary row and one job id.
func BookID(title, author string) string {
	s := strings.ToLower(title + " " + author)
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

type summarizeRequest struct {
	BookTitle string `json:"book_title" validate:"required"`
	Author    string `json:"author"`
}

// Summarize handles POST /api/books/summarize
func (h *BooksHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req summarizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	bookID := BookID(req.BookTitle, req.Author)

	// A finished summary is served without spending quota.
	existing, err := h.summaries.GetByBookID(bookID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil && existing.Status == model.SummaryReady {
		writeJSON(w, http.StatusOK, existing, "summary ready")
		return
	}

	ok, err := h.usage.Reserve(userID, plan.CounterSummaries)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.RateLimit, "summary limit reached for your plan"))
		return
	}

	var author *string
	if req.Author != "" {
		author = &req.Author
	}
	summary, err := h.summaries.CreatePending(bookID, userID, req.BookTitle, author)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	err = h.dispatcher.ScheduleOnce(
		"summarize:"+bookID, JobSummarizeBook,
		summarizeArgs{
			BookID:    bookID,
			UserID:    userID,
			BookTitle: req.BookTitle,
			Author:    req.Author,
		},
		summarizeDelay,
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, summary, "summary is being generated")
}

// GetSummary handles GET /api/books/summary/{book_id}
func (h *BooksHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")

	summary, err := h.summaries.GetByBookID(bookID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if summary == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "summary not found"))
		return
	}

	writeJSON(w, http.StatusOK, summary, "summary")
}

type searchRequest struct {
	Query string `json:"query" validate:"required,min=3"`
}

// Search handles POST /api/books/search
func (h *BooksHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	ok, err := h.usage.Reserve(userID, plan.CounterSmartSearch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.RateLimit, "smart search limit reached for your plan"))
		return
	}

	results, err := h.ai.SearchBooks(r.Context(), req.Query)
	if err != nil {
		// Quota was already spent; the failure still surfaces.
		writeError(w, h.logger, apperr.Wrap(apperr.Upstream, "book search failed", err))
		return
	}

	writeJSON(w, http.StatusOK, results, "search results")
}

type noteRequest struct {
	BookTitle string `json:"book_title" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

// CreateNote handles POST /api/books/notes
func (h *BooksHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	ok, err := h.usage.Reserve(userID, plan.CounterNotes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.RateLimit, "note limit reached for your plan"))
		return
	}

	note, err := h.notes.Create(userID, req.BookTitle, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, note, "note saved")
}

// ListNotes handles GET /api/books/notes
func (h *BooksHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	notes, err := h.notes.ListByUser(userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if notes == nil {
		notes = []*model.Note{}
	}

	writeJSON(w, http.StatusOK, notes, "notes")
}

type reminderRequest struct {
	BookTitle string `json:"book_title" validate:"required"`
	RemindAt  string `json:"remind_at" validate:"required"`
}

// CreateReminder handles POST /api/books/reminders. The reminder is a durable
// one-off job; when it comes due the user gets a push nudge to pick the book
// back up.
func (h *BooksHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	remindAt, err := time.Parse(time.RFC3339, req.RemindAt)
	if err != nil {
		writeFieldErrors(w, map[string]string{"remind_at": "must be an RFC 3339 timestamp"})
		return
	}
	delay := time.Until(remindAt)
	if delay <= 0 {
		writeFieldErrors(w, map[string]string{"remind_at": "must be in the future"})
		return
	}

	ok, err := h.usage.Reserve(userID, plan.CounterReminders)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.RateLimit, "reminder limit reached for your plan"))
		return
	}

	err = h.dispatcher.ScheduleOnce(
		"reminder:"+uuid.NewString(), JobReadingReminder,
		reminderArgs{UserID: userID, BookTitle: req.BookTitle},
		delay,
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"book_title": req.BookTitle,
		"remind_at":  remindAt.UTC().Format(time.RFC3339),
	}, "reminder scheduled")
}

type reminderArgs struct {
	UserID    string `json:"user_id"`
	BookTitle string `json:"book_title"`
}

// ReadingReminderJob returns the dispatcher handler that delivers a due
// reading reminder over push. A user without a registered device token gets
// nothing; the quota was the cost of scheduling, not delivery.
func ReadingReminderJob(users *store.UserStore, pusher *push.Client, logger *slog.Logger) dispatch.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) error {
		var args reminderArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("decode reminder args: %w", err)
		}

		user, err := users.GetByID(args.UserID)
		if err != nil {
			return err
		}
		if user == nil || user.NotificationToken == nil {
			return nil
		}

		err = pusher.Send(ctx, push.Message{
			To:    *user.NotificationToken,
			Title: "Reading reminder",
			Body:  fmt.Sprintf("Time to pick up %s again.", args.BookTitle),
			Data:  map[string]any{"book_title": args.BookTitle},
		})
		if err != nil {
			logger.Error("reminder push", "user_id", args.UserID, "error", err)
		}
		return nil
	}
}

type summarizeArgs struct {
	BookID    string `json:"book_id"`
	UserID    string `json:"user_id"`
	BookTitle string `json:"book_title"`
	Author    string `json:"author"`
}

// SummarizeBookJob returns the dispatcher handler that generates the summary,
// persists it, and notifies the requesting user over websocket and push.
func SummarizeBookJob(
	summaries *store.SummaryStore,
	users *store.UserStore,
	aiClient *ai.Client,
	hub *websocket.Hub,
	pusher *push.Client,
	logger *slog.Logger,
) dispatch.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) error {
		var args summarizeArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("decode summarize args: %w", err)
		}

		analysis, err := aiClient.AnalyzeBook(ctx, args.BookTitle, args.Author)
		if err != nil {
			if markErr := summaries.MarkFailed(args.BookID); markErr != nil {
				logger.Error("mark summary failed", "book_id", args.BookID, "error", markErr)
			}
			hub.SendToUser(args.UserID, websocket.SummaryFailed(args.BookID))
			return fmt.Errorf("analyze %q: %w", args.BookTitle, err)
		}

		data, err := json.Marshal(analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		if err := summaries.SaveAnalysis(args.BookID, string(data)); err != nil {
			return err
		}

		hub.SendToUser(args.UserID, websocket.SummaryReady(args.BookID, args.BookTitle))

		user, err := users.GetByID(args.UserID)
		if err != nil || user == nil || user.NotificationToken == nil {
			return nil
		}
		err = pusher.Send(ctx, push.Message{
			To:    *user.NotificationToken,
			Title: "Summary ready",
			Body:  fmt.Sprintf("Your summary of %s is ready.", args.BookTitle),
			Data:  map[string]any{"book_id": args.BookID},
		})
		if err != nil {
			logger.Error("summary push", "user_id", args.UserID, "error", err)
		}
		return nil
	}
}
