package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vktrack/vktrack/internal/models"
	"github.com/vktrack/vktrack/internal/retry"
)

type delivery struct {
	chatID       int64
	text         string
	allowPreview bool
}

type fakeMessenger struct {
	failures   int  // this many leading calls fail as transient
	permanent  bool // every call fails without retry
	rejectText string
	attempts   int
	sent       []delivery
}

func (f *fakeMessenger) Deliver(ctx context.Context, chatID int64, text string, allowLinkPreview bool) error {
	f.attempts++
	if f.permanent {
		return errors.New("chat not found")
	}
	if f.rejectText != "" && strings.Contains(text, f.rejectText) {
		return errors.New("chat not found")
	}
	if f.attempts <= f.failures {
		return retry.Transient(errors.New("gateway timeout"))
	}
	f.sent = append(f.sent, delivery{chatID, text, allowLinkPreview})
	return nil
}

type fixedResolver struct{ name string }

func (r fixedResolver) DisplayName(ctx context.Context, accountID int64) string {
	return r.name
}

func testDispatcher(m Messenger, r NameResolver) *Dispatcher {
	d := NewDispatcher(m, r, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Collapse backoffs so retry paths run instantly.
	d.policy = retry.Policy{MaxAttempts: 3, BackoffFactor: 2.0}
	return d
}

func TestDispatcher_DeliversToEachRecipient(t *testing.T) {
	messenger := &fakeMessenger{}
	d := testDispatcher(messenger, fixedResolver{"Alice"})

	events := []models.ActivityEvent{
		models.NewFriendEvent(1, 10, time.Now()),
		models.NewFriendEvent(1, 20, time.Now()),
	}
	d.Notify(context.Background(), 1, models.KindFriends, events, []int64{100, 200})

	if len(messenger.sent) != 4 {
		t.Fatalf("expected 2 events x 2 recipients = 4 deliveries, got %d", len(messenger.sent))
	}
	if messenger.sent[0].chatID != 100 || messenger.sent[2].chatID != 200 {
		t.Errorf("unexpected recipient order: %+v", messenger.sent)
	}
	if !strings.Contains(messenger.sent[0].text, "Alice") {
		t.Errorf("message should use the resolved name, got %q", messenger.sent[0].text)
	}
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	messenger := &fakeMessenger{failures: 2}
	d := testDispatcher(messenger, nil)

	events := []models.ActivityEvent{models.NewFriendEvent(1, 10, time.Now())}
	d.Notify(context.Background(), 1, models.KindFriends, events, []int64{100})

	if messenger.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", messenger.attempts)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected eventual delivery, got %d", len(messenger.sent))
	}
}

func TestDispatcher_PermanentFailureStopsWithoutRetry(t *testing.T) {
	messenger := &fakeMessenger{permanent: true}
	d := testDispatcher(messenger, nil)

	events := []models.ActivityEvent{models.NewFriendEvent(1, 10, time.Now())}
	d.Notify(context.Background(), 1, models.KindFriends, events, []int64{100})

	// One formatted attempt plus one plain fallback attempt.
	if messenger.attempts != 2 {
		t.Errorf("non-transient errors must not be retried, got %d attempts", messenger.attempts)
	}
}

func TestDispatcher_FallsBackToPlainNotice(t *testing.T) {
	// Formatted sends exhaust all three attempts; the fallback then lands.
	messenger := &fakeMessenger{failures: 3}
	d := testDispatcher(messenger, fixedResolver{"Alice"})

	events := []models.ActivityEvent{
		models.NewPostEvent(1, models.Post{ID: 1, OwnerID: 1, Text: "hello"}, time.Now()),
	}
	d.Notify(context.Background(), 1, models.KindPosts, events, []int64{100})

	if len(messenger.sent) != 1 {
		t.Fatalf("expected one fallback delivery, got %d", len(messenger.sent))
	}
	sent := messenger.sent[0]
	if strings.Contains(sent.text, "vk.com") {
		t.Errorf("fallback must be plain, got %q", sent.text)
	}
	if sent.allowPreview {
		t.Error("fallback should suppress link previews")
	}
}

func TestDispatcher_FailedEventDoesNotBlockLaterEvents(t *testing.T) {
	// Only the first event's formatted text is rejected; the recipient still
	// gets a formatted attempt for every later event.
	messenger := &fakeMessenger{rejectText: "id10"}
	d := testDispatcher(messenger, fixedResolver{"Alice"})

	events := []models.ActivityEvent{
		models.NewFriendEvent(1, 10, time.Now()),
		models.NewFriendEvent(1, 20, time.Now()),
	}
	d.Notify(context.Background(), 1, models.KindFriends, events, []int64{100})

	if len(messenger.sent) != 2 {
		t.Fatalf("expected fallback plus second event, got %d deliveries", len(messenger.sent))
	}
	fallback := messenger.sent[0]
	if strings.Contains(fallback.text, "vk.com") || fallback.allowPreview {
		t.Errorf("first delivery should be the plain fallback, got %+v", fallback)
	}
	second := messenger.sent[1]
	if !strings.Contains(second.text, "id20") {
		t.Errorf("second event should still go out formatted, got %q", second.text)
	}
}

func TestDispatcher_FallsBackToNumericName(t *testing.T) {
	messenger := &fakeMessenger{}
	d := testDispatcher(messenger, fixedResolver{""})

	events := []models.ActivityEvent{models.NewFriendEvent(42, 10, time.Now())}
	d.Notify(context.Background(), 42, models.KindFriends, events, []int64{100})

	if len(messenger.sent) != 1 {
		t.Fatal("expected delivery")
	}
	if !strings.Contains(messenger.sent[0].text, "id42") {
		t.Errorf("expected numeric fallback name, got %q", messenger.sent[0].text)
	}
}

func TestDispatcher_EmptyInputsAreNoops(t *testing.T) {
	messenger := &fakeMessenger{}
	d := testDispatcher(messenger, nil)

	d.Notify(context.Background(), 1, models.KindFriends, nil, []int64{100})
	d.Notify(context.Background(), 1, models.KindFriends,
		[]models.ActivityEvent{models.NewFriendEvent(1, 10, time.Now())}, nil)

	if messenger.attempts != 0 {
		t.Errorf("expected no deliveries, got %d attempts", messenger.attempts)
	}
}
