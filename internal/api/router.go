package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/vktrack/vktrack/internal/auth"
	"github.com/vktrack/vktrack/internal/metrics"
	"github.com/vktrack/vktrack/internal/tracker"
)

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, store tracker.Store, runner Runner, db *sql.DB, authConfig auth.Config, collector *metrics.Collector, logger *slog.Logger) {
	handler := NewHandler(store, runner, db, logger)
	authHandler := NewAuthHandler(authConfig, logger)

	authMiddleware := auth.AuthMiddleware(authConfig)

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.Handle("/api/auth/validate", authMiddleware(http.HandlerFunc(authHandler.ValidateToken)))

	// Admin routes (require auth)
	mux.Handle("/api/subscriptions", authMiddleware(http.HandlerFunc(handler.GetSubscriptionsHandler)))
	mux.Handle("/api/accounts", authMiddleware(http.HandlerFunc(handler.GetAccountsHandler)))
	mux.Handle("/api/status", authMiddleware(http.HandlerFunc(handler.GetStatusHandler)))

	// Operational routes (public)
	mux.HandleFunc("/healthz", handler.HealthzHandler)
	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
}
