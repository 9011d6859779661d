package anthropic_messages

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"pagechat/internal/providers"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1600
)

type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

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
	body, err := buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": apiVersion,
		"anthropic-dangerous-direct-browser-access": "true",
	}
	respBody, err := providers.PostJSON(ctx, c.cfg.HTTPClient, c.cfg.Name, c.cfg.BaseURL, headers, body)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	if !gjson.ValidBytes(respBody) {
		return providers.ChatResponse{}, fmt.Errorf("decode messages response: invalid json")
	}
	return providers.ChatResponse{Text: gjson.GetBytes(respBody, "content.0.text").String()}, nil
}

// buildPayload keeps the system prompt as a top-level field, as the
// messages API requires.
func buildPayload(req providers.ChatRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	payload := map[string]any{
		"model":      req.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.UserPrompt},
		},
		"temperature": req.Temperature,
		"system":      req.SystemPrompt,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal messages payload: %w", err)
	}
	return b, nil
}
