package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vktrack/vktrack/internal/metrics"
	"github.com/vktrack/vktrack/internal/models"
	"github.com/vktrack/vktrack/internal/retry"
)

// Messenger delivers one message to one chat. Rate-limit rejections are
// surfaced as retry.TransientError so the dispatcher can honor the
// suggested delay.
type Messenger interface {
	Deliver(ctx context.Context, chatID int64, text string, allowLinkPreview bool) error
}

// NameResolver maps a tracked account id to a human-readable display name.
// Implementations return "" when no name is known.
type NameResolver interface {
	DisplayName(ctx context.Context, accountID int64) string
}

// Dispatcher formats activity events and fans them out to subscriber
// chats. Delivery failures are logged and counted, never propagated.
type Dispatcher struct {
	messenger Messenger
	resolver  NameResolver
	collector *metrics.Collector
	logger    *slog.Logger
	policy    retry.Policy
}

// NewDispatcher wires a dispatcher. resolver and collector may be nil.
func NewDispatcher(messenger Messenger, resolver NameResolver, collector *metrics.Collector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		resolver:  resolver,
		collector: collector,
		logger:    logger,
		policy:    retry.DefaultPolicy(),
	}
}

// Notify renders each event and delivers it to every recipient. Giving up
// is scoped to one message: when all attempts for an event fail, one plain
// minimal notice is attempted and delivery moves on to the recipient's
// remaining events.
func (d *Dispatcher) Notify(ctx context.Context, accountID int64, kind models.Kind, events []models.ActivityEvent, recipients []int64) {
	if len(events) == 0 || len(recipients) == 0 {
		return
	}

	name := d.displayName(ctx, accountID)

	for _, recipient := range recipients {
		for _, event := range events {
			if err := d.deliver(ctx, recipient, FormatEvent(name, event)); err != nil {
				d.logger.Error("notification delivery failed",
					"chat_id", recipient, "account_id", accountID,
					"kind", kind, "event_id", event.ID, "error", err)
				d.outcome("failed")
				d.deliverFallback(ctx, recipient, name, kind, event)
				continue
			}
			d.logger.Debug("notification delivered",
				"chat_id", recipient, "account_id", accountID,
				"kind", kind, "event_id", event.ID)
			d.outcome("delivered")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, chatID int64, text string) error {
	return retry.Do(ctx, d.policy, func() error {
		return d.messenger.Deliver(ctx, chatID, text, true)
	})
}

// deliverFallback makes a single plain attempt standing in for the one
// event that did not go out. Its own failure is only logged.
func (d *Dispatcher) deliverFallback(ctx context.Context, chatID int64, name string, kind models.Kind, event models.ActivityEvent) {
	text := PlainFallback(name, kind, 1)
	if err := d.messenger.Deliver(ctx, chatID, text, false); err != nil {
		d.logger.Error("fallback delivery failed",
			"chat_id", chatID, "event_id", event.ID, "error", err)
		return
	}
	d.outcome("fallback")
}

func (d *Dispatcher) displayName(ctx context.Context, accountID int64) string {
	if d.resolver != nil {
		if name := d.resolver.DisplayName(ctx, accountID); name != "" {
			return name
		}
	}
	return fmt.Sprintf("id%d", accountID)
}

func (d *Dispatcher) outcome(outcome string) {
	if d.collector != nil {
		d.collector.DeliveryOutcome(outcome)
	}
}
