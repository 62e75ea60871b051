package vk

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// NameCache resolves account ids to display names for notification text,
// memoizing lookups for the process lifetime. Failures resolve to "" so
// callers can fall back to the numeric id.
type NameCache struct {
	client *Client

	mu    sync.Mutex
	names map[int64]string
}

func NewNameCache(client *Client) *NameCache {
	return &NameCache{
		client: client,
		names:  make(map[int64]string),
	}
}

// DisplayName returns "First Last" for the account, or "" when unknown.
func (n *NameCache) DisplayName(ctx context.Context, accountID int64) string {
	n.mu.Lock()
	if name, ok := n.names[accountID]; ok {
		n.mu.Unlock()
		return name
	}
	n.mu.Unlock()

	params := url.Values{}
	params.Set("user_ids", strconv.FormatInt(accountID, 10))
	params.Set("fields", "first_name,last_name")

	var users []struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := n.client.call(ctx, "users.get", params, &users); err != nil || len(users) == 0 {
		return ""
	}

	name := strings.TrimSpace(users[0].FirstName + " " + users[0].LastName)

	n.mu.Lock()
	n.names[accountID] = name
	n.mu.Unlock()
	return name
}
