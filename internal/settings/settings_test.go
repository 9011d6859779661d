package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"pagechat/internal/models"
	"pagechat/internal/secrets"
)

const sampleSettings = `
interpreter_enabled = true
interpreter_model = "gone"

[[providers]]
id = "p1"
name = "OpenAI"
base_url = "https://api.openai.com/v1/chat/completions"
api_key = "sk-plain"
kind = "openai"

[[providers]]
id = "p2"
name = "Local Ollama"
base_url = "http://localhost:11434/api/chat"

[[models]]
id = "m1"
name = "GPT"
provider_id = "p1"
provider_model_id = "gpt-4o-mini"
enabled = false

[[models]]
id = "m2"
name = "Llama"
provider_id = "p2"
provider_model_id = "llama3"
enabled = true
`

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestManagerLoadsAndInfersKind(t *testing.T) {
	m, err := NewManager(Config{Path: writeSettings(t, sampleSettings), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	p, err := m.Provider("p2")
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if p.Kind != "ollama" {
		t.Fatalf("expected inferred ollama kind, got %q", p.Kind)
	}
	if _, err := m.Provider("nope"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if _, err := m.Model("nope"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	enabled := m.EnabledModels()
	if len(enabled) != 1 || enabled[0].ID != "m2" {
		t.Fatalf("unexpected enabled models: %+v", enabled)
	}
}

func TestSelectInterpreterModelFallsBackAndPersists(t *testing.T) {
	path := writeSettings(t, sampleSettings)
	m, err := NewManager(Config{Path: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	mc, err := m.SelectInterpreterModel()
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if mc.ID != "m2" {
		t.Fatalf("expected fallback to m2, got %s", mc.ID)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "interpreter_model = 'm2'") && !strings.Contains(string(b), `interpreter_model = "m2"`) {
		t.Fatalf("selection not persisted:\n%s", b)
	}

	reloaded, err := NewManager(Config{Path: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Snapshot().InterpreterModel; got != "m2" {
		t.Fatalf("expected m2 after reload, got %q", got)
	}
}

func TestSelectInterpreterModelNoEnabled(t *testing.T) {
	m, err := NewStatic(Settings{Models: []models.ModelConfig{{ID: "a", ProviderID: "p", ProviderModelID: "x"}}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if _, err := m.SelectInterpreterModel(); !errors.Is(err, ErrNoEnabledModels) {
		t.Fatalf("expected ErrNoEnabledModels, got %v", err)
	}
}

func TestSetInterpreterModelUnknown(t *testing.T) {
	m, err := NewStatic(Settings{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if err := m.SetInterpreterModel("x"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestSealedKeysAreOpenedButStaySealedOnDisk(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := secrets.NewSealer("k1", map[string][]byte{"k1": key})
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	sealed, err := s.Seal("sk-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	body := strings.Replace(sampleSettings, `"sk-plain"`, `"`+sealed+`"`, 1)
	path := writeSettings(t, body)

	m, err := NewManager(Config{Path: path, Sealer: s, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	p, _ := m.Provider("p1")
	if p.APIKey != "sk-secret" {
		t.Fatalf("expected opened key, got %q", p.APIKey)
	}
	if err := m.SetInterpreterModel("m1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "sk-secret") {
		t.Fatalf("plaintext key written to disk")
	}
}

func TestSealedKeyWithoutSealerFails(t *testing.T) {
	body := strings.Replace(sampleSettings, `"sk-plain"`, `"enc:k1:AA:BB"`, 1)
	_, err := NewManager(Config{Path: writeSettings(t, body), Logger: zerolog.Nop()})
	if !errors.Is(err, secrets.ErrNoKeys) {
		t.Fatalf("expected ErrNoKeys, got %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]Settings{
		"missing base url": {Providers: []models.Provider{{ID: "p", Name: "x"}}},
		"bad kind":         {Providers: []models.Provider{{ID: "p", Name: "x", BaseURL: "u", Kind: "gemini"}}},
		"duplicate provider": {Providers: []models.Provider{
			{ID: "p", Name: "x", BaseURL: "u"},
			{ID: "p", Name: "y", BaseURL: "u"},
		}},
		"model without provider": {Models: []models.ModelConfig{{ID: "m", ProviderModelID: "x"}}},
	}
	for name, s := range cases {
		if err := Validate(s); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestMissingFileStartsEmpty(t *testing.T) {
	m, err := NewManager(Config{Path: filepath.Join(t.TempDir(), "absent.toml"), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if len(m.EnabledModels()) != 0 {
		t.Fatalf("expected no models")
	}
}
