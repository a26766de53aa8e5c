package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kolosafo/bookflow/internal/model"
	"github.com/kolosafo/bookflow/internal/plan"
	"github.com/kolosafo/bookflow/internal/push"
)

// fakeGemini returns a server that wraps payload in the generateContent
// candidate envelope for every request.
func fakeGemini(t *testing.T, payload any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		env := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": string(text)}}}},
			},
		}
		json.NewEncoder(w).Encode(env)
	}))
}

func TestBookIDDerivation(t *testing.T) {
	cases := []struct {
		title, author, want string
	}{
		{"Deep Work", "Cal Newport", "deep-work-cal-newport"},
		{"Deep Work", "", "deep-work"},
		{"  Atomic   Habits!! ", "James Clear", "atomic-habits-james-clear"},
		{"1984", "George Orwell", "1984-george-orwell"},
	}
	for _, c := range cases {
		if got := BookID(c.title, c.author); got != c.want {
			t.Errorf("BookID(%q, %q) = %q, want %q", c.title, c.author, got, c.want)
		}
	}
}

func TestSummarizeFlow(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	srv := fakeGemini(t, map[string]any{
		"main_argument":    "Focus is a superpower",
		"key_insights":     []map[string]string{{"insight": "Attention residue", "explanation": "Switching costs"}},
		"actionable_steps": []string{"Block deep work time"},
		"one_page_summary": "Work deeply.",
	})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	rec, envlp := doJSON(t, booksH.Summarize, "POST", "/api/books/summarize", map[string]string{
		"book_title": "Deep Work",
		"author":     "Cal Newport",
	}, userContext(user.ID))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("summarize status = %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}

	var pending model.BookSummary
	if err := json.Unmarshal(envlp.Data, &pending); err != nil {
		t.Fatalf("decode pending summary: %v", err)
	}
	if pending.Status != model.SummaryPending {
		t.Fatalf("status = %q, want pending", pending.Status)
	}
	if pending.BookID != "deep-work-cal-newport" {
		t.Fatalf("book id = %q", pending.BookID)
	}

	// The job fires once its 2s delay elapses.
	env.dispatcher.RunDue(context.Background(), time.Now().Add(3*time.Second))

	req := httptest.NewRequest("GET", "/api/books/summary/deep-work-cal-newport", nil)
	req.SetPathValue("book_id", "deep-work-cal-newport")
	rec = httptest.NewRecorder()
	booksH.GetSummary(rec, req.WithContext(userContext(user.ID)))
	if rec.Code != http.StatusOK {
		t.Fatalf("poll status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var got struct {
		Data model.BookSummary `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if got.Data.Status != model.SummaryReady {
		t.Fatalf("status after job = %q, want ready", got.Data.Status)
	}
	if got.Data.Analysis == nil || *got.Data.Analysis == "" {
		t.Fatal("analysis not persisted")
	}
}

func TestSummarizeQuotaExhausted(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	srv := fakeGemini(t, map[string]any{})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	// Free plan allows exactly one summary.
	rec, _ := doJSON(t, booksH.Summarize, "POST", "/api/books/summarize", map[string]string{
		"book_title": "Deep Work",
	}, userContext(user.ID))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first summarize status = %d", rec.Code)
	}

	rec, _ = doJSON(t, booksH.Summarize, "POST", "/api/books/summarize", map[string]string{
		"book_title": "Atomic Habits",
	}, userContext(user.ID))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second summarize status = %d, want 429", rec.Code)
	}
}

func TestSummarizeReadySkipsQuota(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	// Exhaust the summaries counter up front.
	if ok, err := env.usage.Reserve(user.ID, plan.CounterSummaries); err != nil || !ok {
		t.Fatalf("drain quota: ok=%v err=%v", ok, err)
	}

	bookID := BookID("Deep Work", "Cal Newport")
	if _, err := env.summaries.CreatePending(bookID, user.ID, "Deep Work", nil); err != nil {
		t.Fatal(err)
	}
	if err := env.summaries.SaveAnalysis(bookID, `{"one_page_summary":"done"}`); err != nil {
		t.Fatal(err)
	}

	srv := fakeGemini(t, map[string]any{})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	rec, _ := doJSON(t, booksH.Summarize, "POST", "/api/books/summarize", map[string]string{
		"book_title": "Deep Work",
		"author":     "Cal Newport",
	}, userContext(user.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready summary status = %d, want 200 despite empty quota", rec.Code)
	}
}

func TestSummarizeUpstreamFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	rec, _ := doJSON(t, booksH.Summarize, "POST", "/api/books/summarize", map[string]string{
		"book_title": "Deep Work",
	}, userContext(user.ID))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("summarize status = %d", rec.Code)
	}

	env.dispatcher.RunDue(context.Background(), time.Now().Add(3*time.Second))

	summary, err := env.summaries.GetByBookID("deep-work")
	if err != nil || summary == nil {
		t.Fatalf("summary row missing: %v", err)
	}
	if summary.Status != model.SummaryFailed {
		t.Fatalf("status = %q, want failed", summary.Status)
	}

	// Quota was spent before the upstream call and is not refunded.
	u, _ := env.usage.Get(user.ID)
	if u.Summaries != 0 {
		t.Errorf("summaries counter = %d, want 0 (no refund)", u.Summaries)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	srv := fakeGemini(t, map[string]any{
		"results": []map[string]any{
			{"title": "Deep Work", "author": "Cal Newport", "description": "Focused success", "themes": []string{"focus"}},
		},
	})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	body := map[string]string{"query": "books about focus for engineers"}

	// Free plan allows three smart searches.
	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, booksH.Search, "POST", "/api/books/search", body, userContext(user.ID))
		if rec.Code != http.StatusOK {
			t.Fatalf("search %d status = %d (body: %s)", i+1, rec.Code, rec.Body.String())
		}
	}
	rec, _ := doJSON(t, booksH.Search, "POST", "/api/books/search", body, userContext(user.ID))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th search status = %d, want 429", rec.Code)
	}
}

func TestNotesQuota(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	srv := fakeGemini(t, map[string]any{})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	// Free plan allows three notes.
	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, booksH.CreateNote, "POST", "/api/books/notes", map[string]string{
			"book_title": "Deep Work",
			"content":    "note content",
		}, userContext(user.ID))
		if rec.Code != http.StatusCreated {
			t.Fatalf("note %d status = %d", i+1, rec.Code)
		}
	}
	rec, _ := doJSON(t, booksH.CreateNote, "POST", "/api/books/notes", map[string]string{
		"book_title": "Deep Work",
		"content":    "one too many",
	}, userContext(user.ID))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th note status = %d, want 429", rec.Code)
	}

	notes, err := env.notes.ListByUser(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 3 {
		t.Fatalf("stored notes = %d, want 3", len(notes))
	}
}

func TestReminderQuota(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	srv := fakeGemini(t, map[string]any{})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	remindAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	// Free plan allows two reminders.
	for i := 0; i < 2; i++ {
		rec, _ := doJSON(t, booksH.CreateReminder, "POST", "/api/books/reminders", map[string]string{
			"book_title": "Deep Work",
			"remind_at":  remindAt,
		}, userContext(user.ID))
		if rec.Code != http.StatusCreated {
			t.Fatalf("reminder %d status = %d (body: %s)", i+1, rec.Code, rec.Body.String())
		}
	}
	rec, _ := doJSON(t, booksH.CreateReminder, "POST", "/api/books/reminders", map[string]string{
		"book_title": "Deep Work",
		"remind_at":  remindAt,
	}, userContext(user.ID))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd reminder status = %d, want 429", rec.Code)
	}
}

func TestReminderRejectsPastTime(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	srv := fakeGemini(t, map[string]any{})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)

	rec, _ := doJSON(t, booksH.CreateReminder, "POST", "/api/books/reminders", map[string]string{
		"book_title": "Deep Work",
		"remind_at":  time.Now().Add(-time.Minute).UTC().Format(time.RFC3339),
	}, userContext(user.ID))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("past reminder status = %d, want 400", rec.Code)
	}

	// A rejected reminder spends no quota.
	u, err := env.usage.Get(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.Reminders != 2 {
		t.Errorf("reminders counter = %d, want 2", u.Reminders)
	}
}

func TestReminderDeliversPush(t *testing.T) {
	env := newTestEnv(t)
	user := registerActivatedUser(t, env, "a@x.com", "password1")

	token := "ExponentPushToken[reader1]"
	if err := env.users.UpdateNotificationToken(user.ID, token); err != nil {
		t.Fatal(err)
	}

	var sent []push.Message
	expo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []push.Message
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode push batch: %v", err)
		}
		sent = append(sent, batch...)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"status": "ok"}},
		})
	}))
	defer expo.Close()

	srv := fakeGemini(t, map[string]any{})
	defer srv.Close()
	booksH := env.newBooksHandler(srv.URL)
	env.dispatcher.Register(JobReadingReminder, ReadingReminderJob(
		env.users, push.NewClient(push.WithBaseURL(expo.URL)), env.logger,
	))

	rec, _ := doJSON(t, booksH.CreateReminder, "POST", "/api/books/reminders", map[string]string{
		"book_title": "Deep Work",
		"remind_at":  time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}, userContext(user.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("reminder status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Not yet due.
	env.dispatcher.RunDue(context.Background(), time.Now().Add(time.Minute))
	if len(sent) != 0 {
		t.Fatalf("reminder fired early: %d pushes", len(sent))
	}

	env.dispatcher.RunDue(context.Background(), time.Now().Add(2*time.Hour))
	if len(sent) != 1 {
		t.Fatalf("pushes sent = %d, want 1", len(sent))
	}
	if sent[0].To != token {
		t.Errorf("push target = %q, want %q", sent[0].To, token)
	}
	if !strings.Contains(sent[0].Body, "Deep Work") {
		t.Errorf("push body = %q, want it to name the book", sent[0].Body)
	}
}
