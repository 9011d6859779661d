package openai_compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"pagechat/internal/providers"
)

const (
	refererHeader = "https://obsidian.md/"
	titleHeader   = "Obsidian Web Clipper"
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
	body, err := c.buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	respBody, err := providers.PostJSON(ctx, c.cfg.HTTPClient, c.cfg.Name, c.cfg.BaseURL, c.headers(), body)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	text, err := parseChatCompletions(respBody)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"HTTP-Referer": refererHeader,
		"X-Title":      titleHeader,
	}
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		h["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	return h
}

func (c *Client) buildPayload(req providers.ChatRequest) ([]byte, error) {
	payload := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt},
		},
		"temperature": req.Temperature,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, nil
}

// parseChatCompletions reads choices[0].message.content; a missing field is
// an empty answer, not an error.
func parseChatCompletions(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("decode chat completion response: invalid json")
	}
	return gjson.GetBytes(body, "choices.0.message.content").String(), nil
}
