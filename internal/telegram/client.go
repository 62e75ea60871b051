package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vktrack/vktrack/internal/config"
	"github.com/vktrack/vktrack/internal/retry"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering message delivery
// and long-polled update consumption.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client from the delivery channel configuration.
func NewClient(cfg config.TelegramConfig, logger *slog.Logger) *Client {
	return &Client{
		token:   cfg.Token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			// Long-poll requests hold the connection open; leave headroom
			// above the getUpdates timeout.
			Timeout: 65 * time.Second,
		},
		logger: logger,
	}
}

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from"`
	Text      string `json:"text"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User identifies a Telegram account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Deliver sends one text message to a chat. Flood-control rejections come
// back as retry.TransientError carrying the API-suggested cooldown.
func (c *Client) Deliver(ctx context.Context, chatID int64, text string, allowLinkPreview bool) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	if !allowLinkPreview {
		params.Set("disable_web_page_preview", "true")
	}

	var sent Message
	if err := c.call(ctx, "sendMessage", params, &sent); err != nil {
		return err
	}
	return nil
}

// GetUpdates long-polls for incoming updates past the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	params.Set("allowed_updates", `["message"]`)

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("%s request: %w", method, err))
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}

	if !envelope.OK {
		apiErr := fmt.Errorf("%s failed: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
		switch {
		case envelope.ErrorCode == http.StatusTooManyRequests:
			delay := 5 * time.Second
			if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
				delay = time.Duration(envelope.Parameters.RetryAfter) * time.Second
			}
			return retry.TransientWithDelay(apiErr, delay)
		case envelope.ErrorCode >= 500:
			return retry.Transient(apiErr)
		default:
			return apiErr
		}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}

	return nil
}
