package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"pagechat/internal/models"
	"pagechat/internal/providers"
	"pagechat/internal/secrets"
)

// DefaultPromptContext is used when neither the template nor the settings
// provide an interpreter context.
const DefaultPromptContext = `{{fullHtml|remove_html:("#navbar,.footer,#footer,header,footer,style,script")|strip_tags:("script,h1,h2,h3,h4,h5,h6,meta,a,ol,ul,li,p,em,strong,i,b,s,strike,u,sup,sub,img,video,audio,math,table,cite,td,th,tr,caption")|strip_attr:("alt,src,href,id,content,property,name,datetime,title")}}`

var (
	ErrModelNotFound    = errors.New("model not found")
	ErrProviderNotFound = errors.New("provider not found")
	ErrNoEnabledModels  = errors.New("no enabled models")
)

// Settings mirrors the TOML settings file.
type Settings struct {
	InterpreterEnabled   bool                 `toml:"interpreter_enabled" json:"interpreterEnabled"`
	InterpreterAutoRun   bool                 `toml:"interpreter_auto_run" json:"interpreterAutoRun"`
	InterpreterModel     string               `toml:"interpreter_model" json:"interpreterModel"`
	DefaultPromptContext string               `toml:"default_prompt_context" json:"defaultPromptContext"`
	Providers            []models.Provider    `toml:"providers" json:"providers"`
	Models               []models.ModelConfig `toml:"models" json:"models"`
}

func (s Settings) clone() Settings {
	s.Providers = slices.Clone(s.Providers)
	s.Models = slices.Clone(s.Models)
	return s
}

// Manager owns the settings file. Readers get immutable snapshots with API
// keys opened and provider kinds resolved; the raw form (sealed keys) is what
// gets written back.
type Manager struct {
	path   string
	sealer *secrets.Sealer
	logger zerolog.Logger

	mu      sync.RWMutex
	raw     Settings
	current Settings
}

type Config struct {
	Path   string
	Sealer *secrets.Sealer
	Logger zerolog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{path: cfg.Path, sealer: cfg.Sealer, logger: cfg.Logger}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStatic builds a Manager that is not backed by a file.
func NewStatic(s Settings, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{logger: logger}
	if err := m.apply(s); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}
	b, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Warn().Str("path", m.path).Msg("settings file not found, starting with empty settings")
			return m.apply(Settings{})
		}
		return fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := toml.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	return m.apply(s)
}

func (m *Manager) apply(raw Settings) error {
	if err := Validate(raw); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	resolved := raw.clone()
	for i := range resolved.Providers {
		p := &resolved.Providers[i]
		key, err := m.sealer.Open(p.APIKey)
		if err != nil {
			return fmt.Errorf("open api key for provider %q: %w", p.ID, err)
		}
		p.APIKey = key
		if p.Kind == "" {
			p.Kind = string(providers.KindFromName(p.Name))
			m.logger.Warn().Str("provider", p.ID).Str("kind", p.Kind).Msg("provider has no kind, inferred from name")
		} else {
			k, _ := providers.ParseKind(p.Kind)
			p.Kind = string(k)
		}
	}

	m.mu.Lock()
	m.raw = raw.clone()
	m.current = resolved
	m.mu.Unlock()

	m.logger.Info().Int("providers", len(resolved.Providers)).Int("models", len(resolved.Models)).Msg("settings loaded")
	return nil
}

func (m *Manager) Snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Provider resolves a provider by id.
func (m *Manager) Provider(id string) (models.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.current.Providers {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Provider{}, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
}

func (m *Manager) Model(id string) (models.ModelConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mc := range m.current.Models {
		if mc.ID == id {
			return mc, nil
		}
	}
	return models.ModelConfig{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
}

func (m *Manager) EnabledModels() []models.ModelConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ModelConfig, 0, len(m.current.Models))
	for _, mc := range m.current.Models {
		if mc.Enabled {
			out = append(out, mc)
		}
	}
	return out
}

// SelectInterpreterModel returns the last selected model if it is still
// enabled, otherwise the first enabled model, which is then persisted as the
// new selection.
func (m *Manager) SelectInterpreterModel() (models.ModelConfig, error) {
	enabled := m.EnabledModels()
	if len(enabled) == 0 {
		return models.ModelConfig{}, ErrNoEnabledModels
	}
	last := m.Snapshot().InterpreterModel
	for _, mc := range enabled {
		if mc.ID == last {
			return mc, nil
		}
	}
	if err := m.SetInterpreterModel(enabled[0].ID); err != nil {
		return models.ModelConfig{}, err
	}
	return enabled[0], nil
}

func (m *Manager) SetInterpreterModel(id string) error {
	if _, err := m.Model(id); err != nil {
		return err
	}
	m.mu.Lock()
	m.raw.InterpreterModel = id
	m.current.InterpreterModel = id
	raw := m.raw.clone()
	m.mu.Unlock()
	return m.save(raw)
}

func (m *Manager) save(raw Settings) error {
	if m.path == "" {
		return nil
	}
	b, err := toml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func Validate(s Settings) error {
	seen := map[string]bool{}
	for _, p := range s.Providers {
		if err := validation.ValidateStruct(&p,
			validation.Field(&p.ID, validation.Required),
			validation.Field(&p.Name, validation.Required),
			validation.Field(&p.BaseURL, validation.Required),
			validation.Field(&p.Kind, validation.By(validKind)),
		); err != nil {
			return fmt.Errorf("provider %q: %w", p.ID, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
	}

	seen = map[string]bool{}
	for _, mc := range s.Models {
		if err := validation.ValidateStruct(&mc,
			validation.Field(&mc.ID, validation.Required),
			validation.Field(&mc.ProviderID, validation.Required),
			validation.Field(&mc.ProviderModelID, validation.Required),
		); err != nil {
			return fmt.Errorf("model %q: %w", mc.ID, err)
		}
		if seen[mc.ID] {
			return fmt.Errorf("duplicate model id %q", mc.ID)
		}
		seen[mc.ID] = true
	}
	return nil
}

func validKind(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	_, err := providers.ParseKind(s)
	return err
}
