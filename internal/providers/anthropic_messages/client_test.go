package anthropic_messages

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pagechat/internal/providers"
)

func TestChatRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "ak" {
			t.Errorf("unexpected x-api-key %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("unexpected anthropic-version %q", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("authorization header must not be sent")
		}
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if payload["max_tokens"] != float64(1600) {
			t.Errorf("unexpected max_tokens %#v", payload["max_tokens"])
		}
		if payload["system"] != "sys" {
			t.Errorf("unexpected system %#v", payload["system"])
		}
		msgs, _ := payload["messages"].([]any)
		if len(msgs) != 1 {
			t.Errorf("expected a single user message, got %#v", payload["messages"])
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"answer"}]}`))
	}))
	defer srv.Close()

	c := New(Config{Name: "Anthropic", BaseURL: srv.URL, APIKey: "ak"})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{
		Model:        "claude-3-5-haiku-latest",
		SystemPrompt: "sys",
		UserPrompt:   "ctx\n\nhello",
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "answer" {
		t.Fatalf("expected answer, got %q", resp.Text)
	}
}

func TestChatEmptyContentDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	resp, err := New(Config{Name: "Anthropic", BaseURL: srv.URL, APIKey: "ak"}).Chat(context.Background(), providers.ChatRequest{})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "" {
		t.Fatalf("expected empty text, got %q", resp.Text)
	}
}
