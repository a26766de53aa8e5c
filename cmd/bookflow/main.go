package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kolosafo/bookflow/internal/database"
	"github.com/kolosafo/bookflow/internal/dispatch"
	"github.com/kolosafo/bookflow/internal/logging"
	"github.com/kolosafo/bookflow/internal/server"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logging.Setup(os.Getenv("BOOKFLOW_LOG_LEVEL"), os.Getenv("BOOKFLOW_LOG_FORMAT"))

	port := envOr("BOOKFLOW_PORT", "8080")
	dbPath := envOr("BOOKFLOW_DB_PATH", "bookflow.db")

	cfg := server.Config{
		JWTSecret:        os.Getenv("BOOKFLOW_JWT_SECRET"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		EmailServerToken: os.Getenv("EMAIL_SERVER_TOKEN"),
		EmailFrom:        envOr("EMAIL_FROM", "noreply@bookflow.app"),
	}
	if cfg.JWTSecret == "" {
		logger.Error("BOOKFLOW_JWT_SECRET is required")
		os.Exit(1)
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, AI features disabled")
	}
	if cfg.EmailServerToken == "" {
		logger.Warn("EMAIL_SERVER_TOKEN not set, outgoing email disabled")
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	dispatcher := dispatch.New(db, logger.With("component", "dispatch"))

	srv := server.New(db, dispatcher, cfg, logger)

	if err := server.ScheduleMaintenance(dispatcher); err != nil {
		logger.Error("schedule maintenance jobs", "error", err)
		os.Exit(1)
	}
	if err := dispatcher.Start(context.Background()); err != nil {
		logger.Error("start dispatcher", "error", err)
		os.Exit(1)
	}
	defer dispatcher.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("BookFlow running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Hourly rate limiter cleanup so the entry map doesn't grow unbounded.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			srv.RateLimiter().Cleanup()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
