package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vktrack/vktrack/internal/config"
	"github.com/vktrack/vktrack/internal/retry"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.TelegramConfig{Token: "bot-token"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = srv.URL
	return c
}

func TestDeliver(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botbot-token/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		r.ParseForm()
		if got := r.Form.Get("chat_id"); got != "42" {
			t.Errorf("expected chat_id 42, got %q", got)
		}
		if got := r.Form.Get("text"); got != "hello" {
			t.Errorf("expected text hello, got %q", got)
		}
		if r.Form.Get("disable_web_page_preview") != "" {
			t.Error("preview should be allowed")
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
	})

	if err := c.Deliver(context.Background(), 42, "hello", true); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestDeliver_DisablesPreview(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("disable_web_page_preview"); got != "true" {
			t.Errorf("expected preview disabled, got %q", got)
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
	})

	if err := c.Deliver(context.Background(), 42, "hello", false); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestDeliver_FloodControl(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`)
	})

	err := c.Deliver(context.Background(), 42, "hello", true)
	if err == nil {
		t.Fatal("expected error")
	}

	var te *retry.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("flood control should be transient, got %v", err)
	}
	if te.RetryAfter != 7*time.Second {
		t.Errorf("expected retry after 7s, got %v", te.RetryAfter)
	}
}

func TestDeliver_PermanentAPIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	})

	err := c.Deliver(context.Background(), 42, "hello", true)
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.IsTransient(err) {
		t.Errorf("client errors must not be retried, got %v", err)
	}
}

func TestDeliver_ServerErrorIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`)
	})

	err := c.Deliver(context.Background(), 42, "hello", true)
	if !retry.IsTransient(err) {
		t.Errorf("server errors should be transient, got %v", err)
	}
}

func TestGetUpdates(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botbot-token/getUpdates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		r.ParseForm()
		if got := r.Form.Get("offset"); got != "5" {
			t.Errorf("expected offset 5, got %q", got)
		}
		if got := r.Form.Get("timeout"); got != "30" {
			t.Errorf("expected timeout 30, got %q", got)
		}
		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":6,"message":{"message_id":1,"chat":{"id":42,"type":"private"},"text":"/help"}}
		]}`)
	})

	updates, err := c.GetUpdates(context.Background(), 5, 30*time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	u := updates[0]
	if u.UpdateID != 6 || u.Message == nil || u.Message.Chat.ID != 42 || u.Message.Text != "/help" {
		t.Errorf("unexpected update %+v", u)
	}
}
