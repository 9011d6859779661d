package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"pagechat/internal/providers"
)

type Config struct {
	Name       string
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to a local model server. No auth header is sent.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	payload := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt},
		},
		"stream": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	respBody, err := providers.PostJSON(ctx, c.cfg.HTTPClient, c.cfg.Name, c.cfg.BaseURL, nil, body)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	text, err := parseChat(respBody)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

// parseChat accepts either a single JSON object or the newline-delimited
// chunks a streaming request produces, concatenating message.content.
func parseChat(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if gjson.ValidBytes(trimmed) {
		return gjson.GetBytes(trimmed, "message.content").String(), nil
	}

	var sb strings.Builder
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return "", fmt.Errorf("decode chat response: invalid json line")
		}
		sb.WriteString(gjson.GetBytes(line, "message.content").String())
	}
	return sb.String(), nil
}
