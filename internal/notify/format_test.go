package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/vktrack/vktrack/internal/models"
)

func TestFormatEvent_DeepLinks(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		event models.ActivityEvent
		want  string
	}{
		{
			name:  "friend",
			event: models.NewFriendEvent(1, 42, now),
			want:  "https://vk.com/id42",
		},
		{
			name:  "group",
			event: models.NewGroupEvent(1, 77, now),
			want:  "https://vk.com/club77",
		},
		{
			name:  "post",
			event: models.NewPostEvent(1, models.Post{ID: 9, OwnerID: 1, Text: "hi"}, now),
			want:  "https://vk.com/wall1_9",
		},
		{
			name: "comment",
			event: models.NewCommentEvent(1, models.Comment{
				ID: 3, PostID: 9, OwnerID: 1, Text: "reply",
			}, now),
			want: "https://vk.com/wall1_9?reply=3",
		},
		{
			name: "post like",
			event: models.NewLikeEvent(1, models.Like{
				Target: models.LikeTargetPost, OwnerID: -5, ItemID: 12,
			}, now),
			want: "https://vk.com/wall-5_12",
		},
		{
			name: "photo like",
			event: models.NewLikeEvent(1, models.Like{
				Target: models.LikeTargetPhoto, OwnerID: 5, ItemID: 12,
			}, now),
			want: "https://vk.com/photo5_12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatEvent("Alice", tt.event)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("message %q should contain %q", msg, tt.want)
			}
			if !strings.Contains(msg, "Alice") {
				t.Errorf("message %q should name the account", msg)
			}
		})
	}
}

func TestFormatEvent_Presence(t *testing.T) {
	online := FormatEvent("Alice", models.NewPresenceEvent(models.PresenceTransition{
		AccountID: 1, Online: true, At: time.Now(),
	}))
	if !strings.Contains(online, "online") {
		t.Errorf("expected online message, got %q", online)
	}

	offline := FormatEvent("Alice", models.NewPresenceEvent(models.PresenceTransition{
		AccountID: 1, Online: false, At: time.Now(),
	}))
	if !strings.Contains(offline, "offline") {
		t.Errorf("expected offline message, got %q", offline)
	}
}

func TestFormatEvent_TruncatesPostText(t *testing.T) {
	long := strings.Repeat("я", 300)
	msg := FormatEvent("Alice", models.NewPostEvent(1, models.Post{
		ID: 1, OwnerID: 1, Text: long,
	}, time.Now()))

	if strings.Contains(msg, long) {
		t.Error("long post text should be truncated")
	}
	if !strings.Contains(msg, strings.Repeat("я", postPreviewLimit)+"…") {
		t.Error("truncation should cut at the rune limit and add an ellipsis")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"", 10, ""},
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"abcdefghij", 5, "abcde…"},
		{"ααααα", 5, "ααααα"},
		{"αααααβ", 5, "ααααα…"},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestPlainFallback(t *testing.T) {
	if got := PlainFallback("Alice", models.KindPresence, 1); !strings.Contains(got, "presence") {
		t.Errorf("unexpected presence fallback %q", got)
	}
	if got := PlainFallback("Alice", models.KindPosts, 3); !strings.Contains(got, "3") {
		t.Errorf("multi-item fallback should carry the count, got %q", got)
	}
	if got := PlainFallback("Alice", models.KindPosts, 3); strings.Contains(got, "vk.com") {
		t.Errorf("fallback must not contain links, got %q", got)
	}
}
