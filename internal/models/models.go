package models

// Provider is one configured LLM endpoint. Kind selects the wire dialect.
type Provider struct {
	ID      string `json:"id" toml:"id"`
	Name    string `json:"name" toml:"name"`
	BaseURL string `json:"baseUrl" toml:"base_url"`
	APIKey  string `json:"apiKey,omitempty" toml:"api_key"`
	Kind    string `json:"kind,omitempty" toml:"kind"`
}

type ModelConfig struct {
	ID              string `json:"id" toml:"id"`
	Name            string `json:"name" toml:"name"`
	ProviderID      string `json:"providerId" toml:"provider_id"`
	ProviderModelID string `json:"providerModelId" toml:"provider_model_id"`
	Enabled         bool   `json:"enabled" toml:"enabled"`
}

// PromptVariable is a placeholder awaiting an LLM answer. Key is the
// synthetic ordinal (prompt_1, prompt_2, ...), Prompt is the dedupe identity.
type PromptVariable struct {
	Key     string `json:"key"`
	Prompt  string `json:"prompt"`
	Filters string `json:"filters"`
}

// PromptResponse carries the answer for one PromptVariable. UserResponse is
// normally a string but may hold a decoded JSON object or array.
type PromptResponse struct {
	Key          string `json:"key"`
	Prompt       string `json:"prompt"`
	UserResponse any    `json:"user_response"`
}

type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

type Template struct {
	ID                string     `json:"id,omitempty"`
	Name              string     `json:"name,omitempty"`
	NoteContentFormat string     `json:"noteContentFormat"`
	Properties        []Property `json:"properties,omitempty"`
	Context           string     `json:"context,omitempty"`
	Path              string     `json:"path,omitempty"`
	NoteNameFormat    string     `json:"noteNameFormat,omitempty"`
	Behavior          string     `json:"behavior,omitempty"`
	Vault             string     `json:"vault,omitempty"`
	SpecificNoteName  string     `json:"specificNoteName,omitempty"`
	DailyNoteFormat   string     `json:"dailyNoteFormat,omitempty"`
}

// Field is a single input or textarea value supplied by the client.
type Field struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}
