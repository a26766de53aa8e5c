package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kolosafo/bookflow/internal/ai"
	"github.com/kolosafo/bookflow/internal/auth"
	"github.com/kolosafo/bookflow/internal/dispatch"
	"github.com/kolosafo/bookflow/internal/email"
	"github.com/kolosafo/bookflow/internal/handler"
	"github.com/kolosafo/bookflow/internal/middleware"
	"github.com/kolosafo/bookflow/internal/push"
	"github.com/kolosafo/bookflow/internal/store"
	ws "github.com/kolosafo/bookflow/internal/websocket"
)

// Config carries the runtime settings main reads from the environment.
type Config struct {
	JWTSecret        string
	GeminiAPIKey     string
	EmailServerToken string
	EmailFrom        string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	accountH    *handler.AccountHandler
	booksH      *handler.BooksHandler
	vendorH     *handler.VendorHandler
	supportH    *handler.SupportHandler
	userStore   *store.UserStore
	accounts    *store.VendorAccountStore
	issuer      *auth.Issuer
	rateLimiter *middleware.RateLimiter
	dispatcher  *dispatch.Dispatcher
	logger      *slog.Logger
}

func New(db *sql.DB, dispatcher *dispatch.Dispatcher, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	usageStore := store.NewUsageStore(db)
	otpStore := store.NewOTPStore(db)
	supportStore := store.NewSupportStore(db)
	summaryStore := store.NewSummaryStore(db)
	noteStore := store.NewNoteStore(db)
	vendorStore := store.NewVendorStore(db)
	accountStore := store.NewVendorAccountStore(db)
	testKeyStore := store.NewTestKeyStore(db)
	widgetStore := store.NewWidgetUsageStore(db)
	roiStore := store.NewROIStore(db)

	issuer := auth.NewIssuer(cfg.JWTSecret)
	mailer := email.NewClient(cfg.EmailServerToken, cfg.EmailFrom)
	aiClient := ai.NewClient(cfg.GeminiAPIKey)
	pusher := push.NewClient()

	registerJobs(dispatcher, jobDeps{
		users:     userStore,
		usage:     usageStore,
		otps:      otpStore,
		summaries: summaryStore,
		ai:        aiClient,
		mailer:    mailer,
		pusher:    pusher,
		hub:       hub,
		logger:    logger.With("component", "jobs"),
	})

	return &Server{
		db:  db,
		hub: hub,
		accountH: handler.NewAccountHandler(
			userStore, usageStore, otpStore, supportStore,
			mailer, issuer, dispatcher, logger.With("component", "account"),
		),
		booksH: handler.NewBooksHandler(
			userStore, usageStore, summaryStore, noteStore,
			aiClient, dispatcher, logger.With("component", "books"),
		),
		vendorH: handler.NewVendorHandler(
			vendorStore, accountStore, testKeyStore, widgetStore, roiStore,
			otpStore, aiClient, mailer, issuer, logger.With("component", "vendor"),
		),
		supportH:    handler.NewSupportHandler(supportStore, logger.With("component", "support")),
		userStore:   userStore,
		accounts:    accountStore,
		issuer:      issuer,
		rateLimiter: middleware.NewRateLimiter(),
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Hub returns the websocket hub for event broadcasting.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public auth routes, rate limited by client IP
	mux.HandleFunc("POST /api/auth/register", s.rateLimited(s.accountH.Register))
	mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.accountH.Login))
	mux.HandleFunc("POST /api/auth/confirm_email", s.accountH.ConfirmEmail)
	mux.HandleFunc("POST /api/auth/resend_otp", s.rateLimited(s.accountH.ResendOTP))
	mux.HandleFunc("POST /api/auth/forgot_password", s.rateLimited(s.accountH.ForgotPassword))
	mux.HandleFunc("POST /api/auth/reset_password", s.accountH.ResetPassword)

	// Support inbox
	mux.HandleFunc("POST /api/support", s.supportH.Create)

	// Vendor account lifecycle
	mux.HandleFunc("POST /api/vendor/signup", s.rateLimited(s.vendorH.Signup))
	mux.HandleFunc("POST /api/vendor/verify-email", s.vendorH.VerifyEmail)
	mux.HandleFunc("POST /api/vendor/signin", s.rateLimited(s.vendorH.Signin))
	mux.HandleFunc("POST /api/vendor/resend-otp", s.rateLimited(s.vendorH.ResendOTP))

	// Vendor gateway, authenticated by the API key in the path
	mux.HandleFunc("POST /api/vendor/book-rio/{vendor_id}", s.vendorH.BookROI)
	mux.HandleFunc("POST /api/vendor/book-rio", s.vendorH.MissingKey)
	mux.HandleFunc("POST /api/vendor/test-book-value", s.vendorH.TestBookValue)

	// Realtime events, token-authenticated on upgrade
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.authenticateSocket, s.logger.With("component", "websocket")))

	mux.HandleFunc("GET /health", s.healthHandler)

	// Authenticated user routes
	userMux := http.NewServeMux()
	userMux.HandleFunc("DELETE /api/account", s.accountH.DeleteAccount)
	userMux.HandleFunc("PATCH /api/account/interests", s.accountH.UpdateInterests)
	userMux.HandleFunc("PATCH /api/account/notification_token", s.accountH.UpdateNotificationToken)
	userMux.HandleFunc("GET /api/account/usage", s.accountH.Usage)
	userMux.HandleFunc("POST /api/books/summarize", s.booksH.Summarize)
	userMux.HandleFunc("GET /api/books/summary/{book_id}", s.booksH.GetSummary)
	userMux.HandleFunc("POST /api/books/search", s.booksH.Search)
	userMux.HandleFunc("POST /api/books/notes", s.booksH.CreateNote)
	userMux.HandleFunc("POST /api/books/reminders", s.booksH.CreateReminder)
	userMux.HandleFunc("GET /api/books/notes", s.booksH.ListNotes)

	// Staff-only key administration
	userMux.Handle("POST /api/vendor/manage-test-keys", middleware.RequireStaff(http.HandlerFunc(s.vendorH.ManageTestKeys)))
	userMux.Handle("POST /api/vendor/assign-test-key", middleware.RequireStaff(http.HandlerFunc(s.vendorH.AssignTestKey)))

	requireUser := middleware.RequireUser(s.issuer, s.userStore)
	mux.Handle("/api/account", requireUser(userMux))
	mux.Handle("/api/account/", requireUser(userMux))
	mux.Handle("/api/books/", requireUser(userMux))
	mux.Handle("/api/vendor/manage-test-keys", requireUser(userMux))
	mux.Handle("/api/vendor/assign-test-key", requireUser(userMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// authenticateSocket resolves a websocket token to a user id.
func (s *Server) authenticateSocket(token string) (string, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
