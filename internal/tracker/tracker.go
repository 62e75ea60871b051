package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vktrack/vktrack/internal/config"
	"github.com/vktrack/vktrack/internal/metrics"
	"github.com/vktrack/vktrack/internal/models"
	"github.com/vktrack/vktrack/internal/vk"
)

// Upstream is the slice of the VK client the tracker consumes.
type Upstream interface {
	Authenticate(ctx context.Context) error
	FetchPresence(ctx context.Context, accountIDs []int64) ([]vk.Presence, error)
	FetchFriends(ctx context.Context, accountID int64) ([]int64, error)
	FetchGroups(ctx context.Context, accountID int64) ([]int64, error)
	FetchWallPosts(ctx context.Context, accountID int64, limit int) ([]models.Post, error)
	FetchLikes(ctx context.Context, accountID int64) ([]models.Like, error)
	FetchComments(ctx context.Context, accountID int64) ([]models.Comment, error)
}

// Notifier fans events out to recipients. Implementations swallow delivery
// failures; the loops never see them.
type Notifier interface {
	Notify(ctx context.Context, accountID int64, kind models.Kind, events []models.ActivityEvent, recipients []int64)
}

// Backoff applied after an unexpected tick failure before the next tick.
const (
	presenceErrorBackoff = 10 * time.Second
	activityErrorBackoff = 30 * time.Second
)

// Tracker runs the presence and activity poll loops. Both share one
// upstream session and one store handle; state never crosses between them
// outside the store.
type Tracker struct {
	store     Store
	upstream  Upstream
	notifier  Notifier
	collector *metrics.Collector
	logger    *slog.Logger
	cfg       config.TrackerConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New wires a tracker. collector may be nil when metrics are not wanted.
func New(store Store, upstream Upstream, notifier Notifier, collector *metrics.Collector, logger *slog.Logger, cfg config.TrackerConfig) *Tracker {
	return &Tracker{
		store:     store,
		upstream:  upstream,
		notifier:  notifier,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start authenticates against the upstream API and launches both loops.
// Authentication failure is fatal to tracking start: no loop is launched
// and the error is returned for the caller to report.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("tracker already running")
	}

	if err := t.upstream.Authenticate(ctx); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("upstream authentication: %w", err)
	}

	t.running = true
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	t.logger.Info("tracker started",
		"presence_interval", t.cfg.PresenceInterval,
		"activity_interval", t.cfg.ActivityInterval,
		"presence_batch", t.cfg.PresenceBatch,
	)

	t.wg.Add(2)
	go t.presenceLoop(ctx)
	go t.activityLoop(ctx)
	return nil
}

// Stop requests shutdown and waits for both loops to unwind.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopChan)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("tracker stopped")
}

// IsRunning reports whether the loops are active.
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Intervals returns the effective loop intervals, for the status endpoint.
func (t *Tracker) Intervals() (presence, activity time.Duration) {
	return t.cfg.PresenceInterval, t.cfg.ActivityInterval
}

func (t *Tracker) presenceLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.PresenceInterval)
	defer ticker.Stop()

	t.runPresenceTick(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("presence loop stopping, context cancelled")
			return
		case <-t.stopChan:
			t.logger.Info("presence loop stopped")
			return
		case <-ticker.C:
			t.runPresenceTick(ctx)
		}
	}
}

func (t *Tracker) runPresenceTick(ctx context.Context) {
	if err := t.presenceTick(ctx); err != nil {
		t.logger.Error("presence tick failed", "error", err)
		if t.collector != nil {
			t.collector.PollFailed("presence")
		}
		t.pause(ctx, presenceErrorBackoff)
		return
	}
	if t.collector != nil {
		t.collector.PollCompleted("presence")
	}
}

// presenceTick fetches presence for every tracked account in batches and
// reconciles each sample. A failing batch does not abort the others.
func (t *Tracker) presenceTick(ctx context.Context) error {
	accountIDs, err := t.store.ListTrackedAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list tracked accounts: %w", err)
	}
	if len(accountIDs) == 0 {
		return nil
	}

	for _, batch := range partition(accountIDs, t.cfg.PresenceBatch) {
		if t.cancelled(ctx) {
			return nil
		}

		err := t.processPresenceBatch(ctx, batch)
		switch {
		case err == nil:
		case vk.IsRateLimited(err):
			t.logger.Warn("rate limited during presence batch, cooling down",
				"cooldown", vk.RateLimitCooldown)
			t.pause(ctx, vk.RateLimitCooldown)
		case vk.IsAuthFailure(err):
			t.logger.Error("auth failure during presence batch, re-authenticating", "error", err)
			if authErr := t.upstream.Authenticate(ctx); authErr != nil {
				t.logger.Error("re-authentication failed", "error", authErr)
			}
			return nil
		default:
			t.logger.Error("presence batch failed", "batch_size", len(batch), "error", err)
		}
	}

	return nil
}

func (t *Tracker) processPresenceBatch(ctx context.Context, batch []int64) error {
	samples, err := t.upstream.FetchPresence(ctx, batch)
	if err != nil {
		return err
	}

	for _, sample := range samples {
		transition, err := ReconcilePresence(ctx, t.store, sample)
		if err != nil {
			t.logger.Error("presence reconcile failed",
				"account_id", sample.AccountID, "error", err)
			continue
		}
		if transition == nil {
			continue
		}

		if t.collector != nil {
			t.collector.TransitionDetected()
		}
		t.logger.Info("presence transition",
			"account_id", transition.AccountID, "online", transition.Online)

		recipients, err := t.store.ListSubscribersWithFlag(ctx, transition.AccountID, models.KindPresence)
		if err != nil {
			t.logger.Error("list presence subscribers failed",
				"account_id", transition.AccountID, "error", err)
			continue
		}
		if len(recipients) == 0 {
			continue
		}

		events := []models.ActivityEvent{models.NewPresenceEvent(*transition)}
		t.notifier.Notify(ctx, transition.AccountID, models.KindPresence, events, recipients)
	}

	return nil
}

func (t *Tracker) activityLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.ActivityInterval)
	defer ticker.Stop()

	t.runActivityTick(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("activity loop stopping, context cancelled")
			return
		case <-t.stopChan:
			t.logger.Info("activity loop stopped")
			return
		case <-ticker.C:
			t.runActivityTick(ctx)
		}
	}
}

func (t *Tracker) runActivityTick(ctx context.Context) {
	if err := t.activityTick(ctx); err != nil {
		t.logger.Error("activity tick failed", "error", err)
		if t.collector != nil {
			t.collector.PollFailed("activity")
		}
		t.pause(ctx, activityErrorBackoff)
		return
	}
	if t.collector != nil {
		t.collector.PollCompleted("activity")
	}
}

// activityTick walks every account with an enabled activity kind and runs
// the per-kind fetch+reconcile sequence. One account failing does not stop
// the others; an auth failure abandons the rest of the tick after one
// re-authentication attempt.
func (t *Tracker) activityTick(ctx context.Context) error {
	accountIDs, err := t.store.ListAccountsWithActivityFlags(ctx)
	if err != nil {
		return fmt.Errorf("list activity accounts: %w", err)
	}

	now := time.Now()
	for _, accountID := range accountIDs {
		if t.cancelled(ctx) {
			return nil
		}
		if abandon := t.processAccountActivity(ctx, accountID, now); abandon {
			return nil
		}
	}

	return nil
}

// processAccountActivity runs each enabled kind for one account, skipping
// kinds nobody subscribed to. The returned bool requests abandoning the
// remainder of the tick (after an auth failure).
func (t *Tracker) processAccountActivity(ctx context.Context, accountID int64, now time.Time) bool {
	for _, kind := range models.ActivityKinds {
		recipients, err := t.store.ListSubscribersWithFlag(ctx, accountID, kind)
		if err != nil {
			t.logger.Error("list subscribers failed",
				"account_id", accountID, "kind", kind, "error", err)
			continue
		}
		if len(recipients) == 0 {
			continue
		}

		events, err := t.reconcileKind(ctx, accountID, kind, now)
		switch {
		case err == nil:
		case vk.IsRateLimited(err):
			t.logger.Warn("rate limited during activity check, cooling down",
				"account_id", accountID, "kind", kind, "cooldown", vk.RateLimitCooldown)
			t.pause(ctx, vk.RateLimitCooldown)
			continue
		case vk.IsAuthFailure(err):
			t.logger.Error("auth failure during activity check, re-authenticating",
				"account_id", accountID, "kind", kind, "error", err)
			if authErr := t.upstream.Authenticate(ctx); authErr != nil {
				t.logger.Error("re-authentication failed", "error", authErr)
			}
			return true
		default:
			t.logger.Error("activity check failed",
				"account_id", accountID, "kind", kind, "error", err)
			continue
		}

		if len(events) == 0 {
			continue
		}

		if t.collector != nil {
			t.collector.NewItems(string(kind), len(events))
		}
		t.logger.Info("new activity detected",
			"account_id", accountID, "kind", kind, "count", len(events))

		t.notifier.Notify(ctx, accountID, kind, events, recipients)
	}

	return false
}

// pause sleeps for d unless shutdown is requested first.
func (t *Tracker) pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-t.stopChan:
	case <-time.After(d):
	}
}

func (t *Tracker) cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-t.stopChan:
		return true
	default:
		return false
	}
}
