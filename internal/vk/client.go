package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vktrack/vktrack/internal/config"
	"github.com/vktrack/vktrack/internal/models"
)

const (
	apiBase    = "https://api.vk.com/method"
	apiVersion = "5.131"
)

// Presence is one account's online status as reported by a batched
// users.get call.
type Presence struct {
	AccountID int64
	Online    bool
	LastSeen  time.Time
}

// Client talks to the VK API over HTTP. A user-grade token unlocks the
// newsfeed-based like sources; a service token covers everything else.
type Client struct {
	userToken    string
	serviceToken string
	baseURL      string
	client       *http.Client
	logger       *slog.Logger

	mu    sync.RWMutex
	token string // selected during Authenticate
}

// NewClient builds a client from config. Authenticate must succeed before
// any fetch method is used.
func NewClient(cfg config.VKConfig, logger *slog.Logger) *Client {
	return &Client{
		userToken:    cfg.UserToken,
		serviceToken: cfg.ServiceToken,
		baseURL:      apiBase,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

// HasUserToken reports whether the client runs with user-grade credentials.
func (c *Client) HasUserToken() bool {
	return c.userToken != ""
}

// Authenticate selects the strongest configured token and validates it with
// a check call. Safe to call again, including concurrently with fetches from
// another loop reacting to the same auth-failure signal.
func (c *Client) Authenticate(ctx context.Context) error {
	switch {
	case c.userToken != "":
		c.logger.Info("authenticating with user token")
		c.setToken(c.userToken)
	case c.serviceToken != "":
		c.logger.Info("authenticating with service token")
		c.setToken(c.serviceToken)
	default:
		return fmt.Errorf("no VK credentials configured")
	}

	var check []json.RawMessage
	if err := c.call(ctx, "users.get", url.Values{}, &check); err != nil {
		c.setToken("")
		return fmt.Errorf("credential check failed: %w", err)
	}

	c.logger.Info("vk authentication succeeded")
	return nil
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type presenceUser struct {
	ID       int64 `json:"id"`
	Online   int   `json:"online"`
	LastSeen struct {
		Time int64 `json:"time"`
	} `json:"last_seen"`
}

// FetchPresence returns the online status of up to 100 accounts in one call.
// last_seen for an online account is the fetch time, not the stale upstream
// value.
func (c *Client) FetchPresence(ctx context.Context, accountIDs []int64) ([]Presence, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	params := url.Values{}
	params.Set("user_ids", strings.Join(ids, ","))
	params.Set("fields", "online,last_seen")

	var users []presenceUser
	if err := c.call(ctx, "users.get", params, &users); err != nil {
		return nil, err
	}

	now := time.Now()
	result := make([]Presence, 0, len(users))
	for _, u := range users {
		if u.ID == 0 {
			continue
		}
		p := Presence{AccountID: u.ID, Online: u.Online != 0}
		if p.Online || u.LastSeen.Time == 0 {
			p.LastSeen = now
		} else {
			p.LastSeen = time.Unix(u.LastSeen.Time, 0)
		}
		result = append(result, p)
	}

	return result, nil
}

type idList struct {
	Items []int64 `json:"items"`
}

// FetchFriends returns the account's complete friend id list.
func (c *Client) FetchFriends(ctx context.Context, accountID int64) ([]int64, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(accountID, 10))

	var resp idList
	if err := c.call(ctx, "friends.get", params, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// FetchGroups returns the account's complete group id list.
func (c *Client) FetchGroups(ctx context.Context, accountID int64) ([]int64, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(accountID, 10))

	var resp idList
	if err := c.call(ctx, "groups.get", params, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

type wallPost struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Date    int64  `json:"date"`
	Text    string `json:"text"`
	Likes   struct {
		UserLikes int `json:"user_likes"`
	} `json:"likes"`
}

type wallResponse struct {
	Items []wallPost `json:"items"`
}

// FetchWallPosts returns the account's most recent wall posts, newest first.
// Posts missing an id are dropped rather than failing the batch.
func (c *Client) FetchWallPosts(ctx context.Context, accountID int64, limit int) ([]models.Post, error) {
	resp, err := c.wall(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID == 0 {
			c.logger.Warn("skipping malformed wall post", "account_id", accountID)
			continue
		}
		owner := item.OwnerID
		if owner == 0 {
			owner = accountID
		}
		posts = append(posts, models.Post{
			ID:      item.ID,
			OwnerID: owner,
			Date:    time.Unix(item.Date, 0),
			Text:    item.Text,
		})
	}
	return posts, nil
}

// FetchLikes collects recently observable likes by the account. Coverage is
// best-effort: wall self-likes always work; newsfeed post and photo likes
// require a user-grade token. A failure in one source does not abort the
// others.
func (c *Client) FetchLikes(ctx context.Context, accountID int64) ([]models.Like, error) {
	var likes []models.Like
	now := time.Now()

	wall, err := c.wall(ctx, accountID, 10)
	if err != nil {
		if IsRateLimited(err) || IsAuthFailure(err) {
			return nil, err
		}
		c.logger.Warn("wall like source unavailable", "account_id", accountID, "error", err)
	} else {
		for _, post := range wall.Items {
			if post.ID == 0 || post.Likes.UserLikes != 1 {
				continue
			}
			owner := post.OwnerID
			if owner == 0 {
				owner = accountID
			}
			likes = append(likes, models.Like{
				Target:  models.LikeTargetPost,
				OwnerID: owner,
				ItemID:  post.ID,
				Date:    unixOr(post.Date, now),
			})
		}
	}

	if !c.HasUserToken() {
		c.logger.Debug("newsfeed like sources skipped, user token required", "account_id", accountID)
		return likes, nil
	}

	feedLikes, err := c.newsfeedPostLikes(ctx)
	if err != nil {
		if IsRateLimited(err) || IsAuthFailure(err) {
			return nil, err
		}
		c.logger.Warn("newsfeed post like source unavailable", "error", err)
	} else {
		likes = append(likes, feedLikes...)
	}

	photoLikes, err := c.newsfeedPhotoLikes(ctx)
	if err != nil {
		if IsRateLimited(err) || IsAuthFailure(err) {
			return nil, err
		}
		c.logger.Warn("newsfeed photo like source unavailable", "error", err)
	} else {
		likes = append(likes, photoLikes...)
	}

	return likes, nil
}

// FetchComments returns recent comments left by the account on its own wall
// posts. One comment fetch failing does not abort the remaining posts.
func (c *Client) FetchComments(ctx context.Context, accountID int64) ([]models.Comment, error) {
	wall, err := c.wall(ctx, accountID, 10)
	if err != nil {
		return nil, err
	}

	var comments []models.Comment
	for _, post := range wall.Items {
		if post.ID == 0 {
			continue
		}

		params := url.Values{}
		params.Set("owner_id", strconv.FormatInt(accountID, 10))
		params.Set("post_id", strconv.FormatInt(post.ID, 10))
		params.Set("count", "20")
		params.Set("sort", "desc")

		var resp struct {
			Items []struct {
				ID     int64  `json:"id"`
				FromID int64  `json:"from_id"`
				Date   int64  `json:"date"`
				Text   string `json:"text"`
			} `json:"items"`
		}
		if err := c.call(ctx, "wall.getComments", params, &resp); err != nil {
			if IsRateLimited(err) || IsAuthFailure(err) {
				return nil, err
			}
			c.logger.Warn("comment fetch failed for post",
				"account_id", accountID,
				"post_id", post.ID,
				"error", err,
			)
			continue
		}

		for _, item := range resp.Items {
			if item.ID == 0 || item.FromID != accountID {
				continue
			}
			comments = append(comments, models.Comment{
				ID:      item.ID,
				PostID:  post.ID,
				OwnerID: accountID,
				Date:    time.Unix(item.Date, 0),
				Text:    item.Text,
			})
		}
	}

	return comments, nil
}

var profileURLPattern = regexp.MustCompile(`(?i)^(?:https?://)?(?:m\.)?vk\.com/(.+)$`)

// ResolveHandle turns user input into a numeric account id. Accepted forms:
// a bare number, a vk.com/id<digits> URL, or a handle resolved through one
// users.get round trip. Returns 0 with a nil error when the handle does not
// exist upstream.
func (c *Client) ResolveHandle(ctx context.Context, text string) (int64, error) {
	text = strings.TrimSpace(text)

	if id, err := strconv.ParseInt(text, 10, 64); err == nil && id > 0 {
		return id, nil
	}

	handle := text
	if m := profileURLPattern.FindStringSubmatch(text); m != nil {
		handle = m[1]
	}
	handle = strings.Trim(handle, "/")

	if strings.HasPrefix(handle, "id") {
		if id, err := strconv.ParseInt(handle[2:], 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}

	params := url.Values{}
	params.Set("user_ids", handle)

	var users []struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, "users.get", params, &users); err != nil {
		return 0, err
	}

	if len(users) == 0 || users[0].ID == 0 {
		return 0, nil
	}
	return users[0].ID, nil
}

func (c *Client) wall(ctx context.Context, accountID int64, limit int) (*wallResponse, error) {
	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(accountID, 10))
	params.Set("count", strconv.Itoa(limit))

	var resp wallResponse
	if err := c.call(ctx, "wall.get", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) newsfeedPostLikes(ctx context.Context) ([]models.Like, error) {
	params := url.Values{}
	params.Set("filters", "post")
	params.Set("count", "15")

	var resp struct {
		Items []struct {
			PostID   int64 `json:"post_id"`
			SourceID int64 `json:"source_id"`
			Date     int64 `json:"date"`
			Likes    struct {
				UserLikes int `json:"user_likes"`
			} `json:"likes"`
		} `json:"items"`
	}
	if err := c.call(ctx, "newsfeed.get", params, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	var likes []models.Like
	for _, item := range resp.Items {
		if item.PostID == 0 || item.SourceID == 0 || item.Likes.UserLikes != 1 {
			continue
		}
		likes = append(likes, models.Like{
			Target:  models.LikeTargetPost,
			OwnerID: item.SourceID,
			ItemID:  item.PostID,
			Date:    unixOr(item.Date, now),
		})
	}
	return likes, nil
}

func (c *Client) newsfeedPhotoLikes(ctx context.Context) ([]models.Like, error) {
	params := url.Values{}
	params.Set("filters", "photo")
	params.Set("count", "10")

	var resp struct {
		Items []struct {
			Photos struct {
				Items []struct {
					ID      int64 `json:"id"`
					OwnerID int64 `json:"owner_id"`
					Date    int64 `json:"date"`
					Likes   struct {
						UserLikes int `json:"user_likes"`
					} `json:"likes"`
				} `json:"items"`
			} `json:"photos"`
		} `json:"items"`
	}
	if err := c.call(ctx, "newsfeed.get", params, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	var likes []models.Like
	for _, item := range resp.Items {
		for _, photo := range item.Photos.Items {
			if photo.ID == 0 || photo.Likes.UserLikes != 1 {
				continue
			}
			likes = append(likes, models.Like{
				Target:  models.LikeTargetPhoto,
				OwnerID: photo.OwnerID,
				ItemID:  photo.ID,
				Date:    unixOr(photo.Date, now),
			})
		}
	}
	return likes, nil
}

// call performs one VK API method invocation and decodes the "response"
// payload into out. API-level errors come back as *APIError.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	token := c.currentToken()
	if token == "" {
		return &APIError{Code: codeAuthFailed, Message: "not authenticated"}
	}

	params.Set("access_token", token)
	params.Set("v", apiVersion)

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, body)
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
		Error    *struct {
			Code    int    `json:"error_code"`
			Message string `json:"error_msg"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", method, err)
	}

	if envelope.Error != nil {
		return &APIError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	if out != nil && len(envelope.Response) > 0 {
		if err := json.Unmarshal(envelope.Response, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
	}

	return nil
}

func unixOr(ts int64, fallback time.Time) time.Time {
	if ts == 0 {
		return fallback
	}
	return time.Unix(ts, 0)
}
