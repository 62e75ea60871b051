package notify

import (
	"fmt"
	"strings"

	"github.com/vktrack/vktrack/internal/models"
)

const (
	postPreviewLimit    = 200
	commentPreviewLimit = 100
)

// FormatEvent renders one activity event as a Telegram-ready message.
// name is the display name of the tracked account the event belongs to.
func FormatEvent(name string, event models.ActivityEvent) string {
	switch event.Kind {
	case models.KindPresence:
		if event.Transition != nil && event.Transition.Online {
			return fmt.Sprintf("🟢 %s is now online", name)
		}
		return fmt.Sprintf("⚪ %s went offline", name)

	case models.KindFriends:
		return fmt.Sprintf("👥 %s added a new friend: https://vk.com/id%d", name, event.FriendID)

	case models.KindGroups:
		return fmt.Sprintf("📢 %s joined a group: https://vk.com/club%d", name, event.GroupID)

	case models.KindPosts:
		if event.Post == nil {
			return fmt.Sprintf("📝 %s published a new post", name)
		}
		msg := fmt.Sprintf("📝 %s published a new post: https://vk.com/wall%d_%d",
			name, event.Post.OwnerID, event.Post.ID)
		if preview := truncate(event.Post.Text, postPreviewLimit); preview != "" {
			msg += "\n\n" + preview
		}
		return msg

	case models.KindLikes:
		if event.Like == nil {
			return fmt.Sprintf("❤️ %s liked something", name)
		}
		return fmt.Sprintf("❤️ %s liked a %s: %s",
			name, likeNoun(event.Like.Target), likeURL(*event.Like))

	case models.KindComments:
		if event.Comment == nil {
			return fmt.Sprintf("💬 %s left a comment", name)
		}
		msg := fmt.Sprintf("💬 %s left a comment: https://vk.com/wall%d_%d?reply=%d",
			name, event.Comment.OwnerID, event.Comment.PostID, event.Comment.ID)
		if preview := truncate(event.Comment.Text, commentPreviewLimit); preview != "" {
			msg += "\n\n" + preview
		}
		return msg
	}

	return fmt.Sprintf("%s: new %s activity", name, event.Kind)
}

// PlainFallback is the minimal message sent when formatted delivery keeps
// failing, stripped of links and previews.
func PlainFallback(name string, kind models.Kind, count int) string {
	if kind == models.KindPresence {
		return fmt.Sprintf("%s: presence changed", name)
	}
	if count == 1 {
		return fmt.Sprintf("%s: new %s activity", name, kind)
	}
	return fmt.Sprintf("%s: %d new %s items", name, count, kind)
}

func likeNoun(target models.LikeTarget) string {
	switch target {
	case models.LikeTargetPost:
		return "post"
	case models.LikeTargetPhoto:
		return "photo"
	case models.LikeTargetVideo:
		return "video"
	case models.LikeTargetComment:
		return "comment"
	}
	return "item"
}

func likeURL(like models.Like) string {
	switch like.Target {
	case models.LikeTargetPhoto:
		return fmt.Sprintf("https://vk.com/photo%d_%d", like.OwnerID, like.ItemID)
	case models.LikeTargetVideo:
		return fmt.Sprintf("https://vk.com/video%d_%d", like.OwnerID, like.ItemID)
	default:
		return fmt.Sprintf("https://vk.com/wall%d_%d", like.OwnerID, like.ItemID)
	}
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
