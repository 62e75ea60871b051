package api

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vktrack/vktrack/internal/database"
	"github.com/vktrack/vktrack/internal/models"
	"github.com/vktrack/vktrack/internal/tracker"
)

// Runner exposes the poll loop state the status endpoint reports.
type Runner interface {
	IsRunning() bool
	Intervals() (presence, activity time.Duration)
}

// Handler serves the read-only admin endpoints over the tracker state.
type Handler struct {
	store  tracker.Store
	runner Runner
	db     *sql.DB
	logger *slog.Logger
}

func NewHandler(store tracker.Store, runner Runner, db *sql.DB, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		runner: runner,
		db:     db,
		logger: logger,
	}
}

// SubscriptionEntry is one (subscriber, account) pair with its flags.
type SubscriptionEntry struct {
	SubscriberID int64                  `json:"subscriber_id"`
	AccountID    int64                  `json:"account_id"`
	Flags        models.MonitoringFlags `json:"flags"`
}

// GetSubscriptionsHandler handles GET /api/subscriptions
func (h *Handler) GetSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var filterSubscriber int64
	if raw := r.URL.Query().Get("subscriber_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid subscriber_id", http.StatusBadRequest)
			return
		}
		filterSubscriber = id
	}

	ctx := r.Context()
	accountIDs, err := h.store.ListTrackedAccounts(ctx)
	if err != nil {
		h.logger.Error("failed to list tracked accounts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	entries := make([]SubscriptionEntry, 0)
	for _, accountID := range accountIDs {
		subscriberIDs, err := h.store.ListSubscribers(ctx, accountID)
		if err != nil {
			h.logger.Error("failed to list subscribers", "account_id", accountID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		for _, subscriberID := range subscriberIDs {
			if filterSubscriber != 0 && subscriberID != filterSubscriber {
				continue
			}
			flags, err := h.store.GetPreferences(ctx, subscriberID, accountID)
			if err != nil {
				h.logger.Error("failed to load preferences",
					"subscriber_id", subscriberID, "account_id", accountID, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if flags == nil {
				defaults := models.DefaultFlags()
				flags = &defaults
			}

			entries = append(entries, SubscriptionEntry{
				SubscriberID: subscriberID,
				AccountID:    accountID,
				Flags:        *flags,
			})
		}
	}

	writeJSON(w, h.logger, entries)
}

// AccountEntry is one tracked account with its last observed presence.
type AccountEntry struct {
	AccountID   int64      `json:"account_id"`
	Subscribers int        `json:"subscribers"`
	Online      *bool      `json:"online,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// GetAccountsHandler handles GET /api/accounts
func (h *Handler) GetAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	accountIDs, err := h.store.ListTrackedAccounts(ctx)
	if err != nil {
		h.logger.Error("failed to list tracked accounts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	entries := make([]AccountEntry, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		subscriberIDs, err := h.store.ListSubscribers(ctx, accountID)
		if err != nil {
			h.logger.Error("failed to list subscribers", "account_id", accountID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		entry := AccountEntry{
			AccountID:   accountID,
			Subscribers: len(subscriberIDs),
		}

		state, err := h.store.GetPresence(ctx, accountID)
		if err != nil {
			h.logger.Error("failed to load presence", "account_id", accountID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if state != nil {
			online := state.Online
			lastSeen := state.LastSeen
			entry.Online = &online
			entry.LastSeen = &lastSeen
		}

		entries = append(entries, entry)
	}

	writeJSON(w, h.logger, entries)
}

// StatusResponse reports overall service health.
type StatusResponse struct {
	TrackerRunning   bool   `json:"tracker_running"`
	PresenceInterval string `json:"presence_interval"`
	ActivityInterval string `json:"activity_interval"`
	Database         string `json:"database"`
}

// GetStatusHandler handles GET /api/status
func (h *Handler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	presence, activity := h.runner.Intervals()
	response := StatusResponse{
		TrackerRunning:   h.runner.IsRunning(),
		PresenceInterval: presence.String(),
		ActivityInterval: activity.String(),
		Database:         "ok",
	}

	if h.db != nil {
		if err := database.HealthCheck(r.Context(), h.db); err != nil {
			h.logger.Error("database health check failed", "error", err)
			response.Database = "unreachable"
		}
	}

	writeJSON(w, h.logger, response)
}

// HealthzHandler handles GET /healthz
func (h *Handler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := database.HealthCheck(r.Context(), h.db); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
