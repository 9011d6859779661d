package registry

import (
	"fmt"
	"net/http"

	"pagechat/internal/providers"
	"pagechat/internal/providers/anthropic_messages"
	"pagechat/internal/providers/ollama"
	"pagechat/internal/providers/openai_compat"
)

type BuildOptions struct {
	Kind       providers.Kind
	Name       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func Build(opts BuildOptions) (providers.Provider, error) {
	switch opts.Kind {
	case providers.KindAnthropic:
		return anthropic_messages.New(anthropic_messages.Config{
			Name:       opts.Name,
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.KindOllama:
		return ollama.New(ollama.Config{
			Name:       opts.Name,
			BaseURL:    opts.BaseURL,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.KindOpenAI:
		return openai_compat.New(openai_compat.Config{
			Name:       opts.Name,
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
