package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vktrack/vktrack/internal/models"
)

const helpText = `Commands:
/subscribe <id, handle or vk.com link> - start tracking an account
/unsubscribe <n> - stop tracking entry n from /list
/list - show your tracked accounts
/settings <n> - show alert settings for entry n
/toggle <n> <k> - flip setting k for entry n
/help - this message`

// handleCommand dispatches one slash command and returns the reply text.
func (b *Bot) handleCommand(ctx context.Context, chatID int64, text string) string {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// Group chats address commands as /cmd@botname.
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	switch cmd {
	case "/start":
		return "Hi! I watch VK accounts and tell you when something changes.\n\n" + helpText
	case "/help":
		return helpText
	case "/subscribe":
		return b.cmdSubscribe(ctx, chatID, args)
	case "/unsubscribe":
		return b.cmdUnsubscribe(ctx, chatID, args)
	case "/list":
		return b.cmdList(ctx, chatID)
	case "/settings":
		return b.cmdSettings(ctx, chatID, args)
	case "/toggle":
		return b.cmdToggle(ctx, chatID, args)
	}

	return "Unknown command. Try /help."
}

func (b *Bot) cmdSubscribe(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /subscribe <id, handle or vk.com link>"
	}

	accountID, err := b.resolver.ResolveHandle(ctx, args[0])
	if err != nil {
		b.logger.Error("handle resolution failed", "raw", args[0], "error", err)
		return "Could not reach VK right now. Try again in a minute."
	}
	if accountID == 0 {
		return fmt.Sprintf("No VK account found for %q.", args[0])
	}

	created, err := b.store.AddSubscription(ctx, chatID, accountID)
	if err != nil {
		b.logger.Error("adding subscription failed",
			"chat_id", chatID, "account_id", accountID, "error", err)
		return "Something went wrong saving the subscription."
	}
	if !created {
		return fmt.Sprintf("You already track https://vk.com/id%d.", accountID)
	}

	if err := b.store.InitPreferences(ctx, chatID, accountID); err != nil {
		b.logger.Error("initializing preferences failed",
			"chat_id", chatID, "account_id", accountID, "error", err)
	}

	return fmt.Sprintf("Now tracking https://vk.com/id%d.\nOnline/offline alerts are on by default; use /settings to enable more.", accountID)
}

func (b *Bot) cmdUnsubscribe(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /unsubscribe <n> (see /list for numbers)"
	}

	accountID, errMsg := b.accountByIndex(ctx, chatID, args[0])
	if errMsg != "" {
		return errMsg
	}

	removed, err := b.store.RemoveSubscription(ctx, chatID, accountID)
	if err != nil {
		b.logger.Error("removing subscription failed",
			"chat_id", chatID, "account_id", accountID, "error", err)
		return "Something went wrong removing the subscription."
	}
	if !removed {
		return "That subscription is already gone."
	}

	return fmt.Sprintf("Stopped tracking https://vk.com/id%d.", accountID)
}

func (b *Bot) cmdList(ctx context.Context, chatID int64) string {
	accountIDs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.logger.Error("listing subscriptions failed", "chat_id", chatID, "error", err)
		return "Something went wrong loading your subscriptions."
	}
	if len(accountIDs) == 0 {
		return "You are not tracking anyone yet. Use /subscribe to start."
	}

	var sb strings.Builder
	sb.WriteString("Your tracked accounts:\n")
	for i, accountID := range accountIDs {
		fmt.Fprintf(&sb, "%d. https://vk.com/id%d\n", i+1, accountID)
	}
	sb.WriteString("\nUse /settings <n> to see alert settings.")
	return sb.String()
}

func (b *Bot) cmdSettings(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /settings <n> (see /list for numbers)"
	}

	accountID, errMsg := b.accountByIndex(ctx, chatID, args[0])
	if errMsg != "" {
		return errMsg
	}

	flags, err := b.store.GetPreferences(ctx, chatID, accountID)
	if err != nil {
		b.logger.Error("loading preferences failed",
			"chat_id", chatID, "account_id", accountID, "error", err)
		return "Something went wrong loading the settings."
	}
	if flags == nil {
		defaults := models.DefaultFlags()
		flags = &defaults
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Alerts for https://vk.com/id%d:\n", accountID)
	for i, kind := range models.AllKinds {
		state := "off"
		if flags.Get(kind) {
			state = "on"
		}
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, kindLabel(kind), state)
	}
	fmt.Fprintf(&sb, "\nUse /toggle %s <k> to flip a setting.", args[0])
	return sb.String()
}

func (b *Bot) cmdToggle(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 2 {
		return "Usage: /toggle <n> <k> (n from /list, k from /settings)"
	}

	accountID, errMsg := b.accountByIndex(ctx, chatID, args[0])
	if errMsg != "" {
		return errMsg
	}

	kindIdx, err := strconv.Atoi(args[1])
	if err != nil {
		return "The setting number must be a number."
	}
	kind, ok := models.KindByIndex(kindIdx)
	if !ok {
		return fmt.Sprintf("The setting number must be between 1 and %d.", len(models.AllKinds))
	}

	flags, err := b.store.GetPreferences(ctx, chatID, accountID)
	if err != nil {
		b.logger.Error("loading preferences failed",
			"chat_id", chatID, "account_id", accountID, "error", err)
		return "Something went wrong loading the settings."
	}
	if flags == nil {
		defaults := models.DefaultFlags()
		flags = &defaults
	}

	next := !flags.Get(kind)
	if err := b.store.SetPreferences(ctx, chatID, accountID, models.SingleFlagUpdate(kind, next)); err != nil {
		b.logger.Error("saving preferences failed",
			"chat_id", chatID, "account_id", accountID, "error", err)
		return "Something went wrong saving the settings."
	}

	state := "off"
	if next {
		state = "on"
	}
	return fmt.Sprintf("%s alerts for https://vk.com/id%d are now %s.", kindLabel(kind), accountID, state)
}

// accountByIndex resolves a 1-based /list position to an account id. The
// second return value is a user-facing error message, empty on success.
func (b *Bot) accountByIndex(ctx context.Context, chatID int64, raw string) (int64, string) {
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "The entry number must be a number (see /list)."
	}

	accountIDs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.logger.Error("listing subscriptions failed", "chat_id", chatID, "error", err)
		return 0, "Something went wrong loading your subscriptions."
	}
	if len(accountIDs) == 0 {
		return 0, "You are not tracking anyone yet. Use /subscribe to start."
	}
	if idx < 1 || idx > len(accountIDs) {
		return 0, fmt.Sprintf("The entry number must be between 1 and %d.", len(accountIDs))
	}

	return accountIDs[idx-1], ""
}

func kindLabel(kind models.Kind) string {
	switch kind {
	case models.KindPresence:
		return "Online/offline"
	case models.KindFriends:
		return "New friends"
	case models.KindGroups:
		return "New groups"
	case models.KindPosts:
		return "New posts"
	case models.KindLikes:
		return "New likes"
	case models.KindComments:
		return "New comments"
	}
	return string(kind)
}
