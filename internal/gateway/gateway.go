package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/interpreter"
	"pagechat/internal/metrics"
	"pagechat/internal/models"
	"pagechat/internal/providers"
	"pagechat/internal/providers/registry"
	"pagechat/internal/settings"
)

const (
	SystemPrompt = `You are a helpful assistant analyzing a web page. You have access to the page content and any highlights the user has made.
Respond naturally and conversationally. If the user references highlights, acknowledge them in your response.
Keep responses concise but informative. Format responses in Markdown when appropriate.`

	interpretInstruction = `Respond with one JSON object named "prompts_responses" and no text before or after it. ` +
		`Use the keys of "prompts" (prompt_1, prompt_2, ...) and put the answer to each prompt as the value. ` +
		`Values are Markdown strings unless the prompt asks otherwise. Example: {"prompts_responses":{"prompt_1":"tag1, tag2","prompt_2":"- point one\n- point two"}}`

	temperature = 0.7
)

var (
	ErrModelNotFound    = settings.ErrModelNotFound
	ErrProviderNotFound = settings.ErrProviderNotFound
	ErrMissingAPIKey    = errors.New("api key is not set")
)

// Registry resolves models and their providers.
type Registry interface {
	Model(id string) (models.ModelConfig, error)
	Provider(id string) (models.Provider, error)
}

type Config struct {
	Registry   Registry
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Gateway sends a (context, content, model) triple to whichever provider the
// model belongs to and returns the answer text.
type Gateway struct {
	registry Registry
	client   *http.Client
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func New(cfg Config) *Gateway {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global()
	}
	return &Gateway{
		registry: cfg.Registry,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

var _ interpreter.Interpreter = (*Gateway)(nil)

type Request struct {
	Context string
	Content string
	ModelID string
}

func (g *Gateway) Send(ctx context.Context, req Request) (string, error) {
	model, err := g.registry.Model(req.ModelID)
	if err != nil {
		return "", err
	}
	p, err := g.registry.Provider(model.ProviderID)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", model.Name, err)
	}

	kind, err := providers.ParseKind(p.Kind)
	if err != nil {
		kind = providers.KindFromName(p.Name)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", fmt.Errorf("%w for provider %s", ErrMissingAPIKey, p.Name)
	}

	client, err := registry.Build(registry.BuildOptions{
		Kind:       kind,
		Name:       p.Name,
		BaseURL:    p.BaseURL,
		APIKey:     p.APIKey,
		HTTPClient: g.client,
	})
	if err != nil {
		return "", err
	}

	g.logger.Debug().
		Str("provider", p.Name).
		Str("dialect", string(kind)).
		Str("model", model.ProviderModelID).
		Msg("sending llm request")

	start := time.Now()
	resp, err := client.Chat(ctx, providers.ChatRequest{
		Model:        model.ProviderModelID,
		SystemPrompt: SystemPrompt,
		UserPrompt:   req.Context + "\n\n" + req.Content,
		Temperature:  temperature,
	})
	g.metrics.LLMDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.LLMRequests.WithLabelValues(string(kind), "error").Inc()
		g.logger.Error().Err(err).Str("provider", p.Name).Msg("llm request failed")
		return "", err
	}
	g.metrics.LLMRequests.WithLabelValues(string(kind), "ok").Inc()
	return resp.Text, nil
}

// Interpret asks the model to answer every prompt variable at once and maps
// the reply back onto vars.
func (g *Gateway) Interpret(ctx context.Context, promptContext, content string, vars []models.PromptVariable, modelID string) ([]models.PromptResponse, error) {
	body, err := interpretContent(content, vars)
	if err != nil {
		return nil, err
	}
	raw, err := g.Send(ctx, Request{Context: promptContext, Content: body, ModelID: modelID})
	if err != nil {
		return nil, err
	}
	return interpreter.ParseResponse(g.logger, raw, vars), nil
}

// interpretContent renders {"prompts":{...}} with keys in variable order,
// followed by the reply format instruction.
func interpretContent(content string, vars []models.PromptVariable) (string, error) {
	var b strings.Builder
	if strings.TrimSpace(content) != "" {
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	b.WriteString(`{"prompts":{`)
	for i, v := range vars {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(v.Key)
		if err != nil {
			return "", err
		}
		p, err := json.Marshal(v.Prompt)
		if err != nil {
			return "", err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(p)
	}
	b.WriteString("}}\n\n")
	b.WriteString(interpretInstruction)
	return b.String(), nil
}
