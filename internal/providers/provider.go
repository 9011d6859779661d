package providers

import (
	"context"
	"fmt"
	"strings"
)

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Text string
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Kind names a wire dialect.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOllama    Kind = "ollama"
	KindOpenAI    Kind = "openai"
)

func ParseKind(v string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "anthropic", "anthropic_messages":
		return KindAnthropic, nil
	case "ollama":
		return KindOllama, nil
	case "openai", "openai_compat", "openai-compatible":
		return KindOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported provider kind %q", v)
	}
}

// KindFromName infers a dialect from a provider display name. It only exists
// for settings files written before providers carried an explicit kind.
func KindFromName(name string) Kind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "anthropic"):
		return KindAnthropic
	case strings.Contains(n, "ollama"):
		return KindOllama
	default:
		return KindOpenAI
	}
}

// HTTPError is returned for any non-2xx provider response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s error: %s %s", e.Provider, e.Status, e.Body)
}
