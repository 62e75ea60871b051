package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vktrack/vktrack/internal/telegram"
	"github.com/vktrack/vktrack/internal/tracker"
)

const (
	pollTimeout   = 30 * time.Second
	errorCooldown = 5 * time.Second
)

// UpdateSource supplies incoming chat updates, typically via long polling.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Messenger sends replies back to chats.
type Messenger interface {
	Deliver(ctx context.Context, chatID int64, text string, allowLinkPreview bool) error
}

// Resolver maps a user-supplied handle, numeric id, or profile URL to an
// account id. A zero id with nil error means the handle does not exist.
type Resolver interface {
	ResolveHandle(ctx context.Context, raw string) (int64, error)
}

// Bot is the chat command front end over the subscription store.
type Bot struct {
	store    tracker.Store
	updates  UpdateSource
	sender   Messenger
	resolver Resolver
	logger   *slog.Logger
}

func New(store tracker.Store, updates UpdateSource, sender Messenger, resolver Resolver, logger *slog.Logger) *Bot {
	return &Bot{
		store:    store,
		updates:  updates,
		sender:   sender,
		resolver: resolver,
		logger:   logger,
	}
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("bot update loop started")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot update loop stopped")
			return
		default:
		}

		updates, err := b.updates.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("bot update loop stopped")
				return
			}
			b.logger.Error("fetching updates failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorCooldown):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}

	reply := b.handleCommand(ctx, msg.Chat.ID, msg.Text)
	if reply == "" {
		return
	}
	if err := b.sender.Deliver(ctx, msg.Chat.ID, reply, false); err != nil {
		b.logger.Error("sending reply failed", "chat_id", msg.Chat.ID, "error", err)
	}
}
