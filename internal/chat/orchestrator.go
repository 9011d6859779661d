package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/gateway"
	"pagechat/internal/metrics"
	"pagechat/internal/models"
)

const (
	contextPrefix    = "PAGE CONTENT: "
	contextAck       = "Sure. Happy to help."
	highlightsMarker = "HIGHLIGHTED EXCERPTS:"
	RoleError        = "error"
)

// Sender is the chat side of the LLM gateway.
type Sender interface {
	Send(ctx context.Context, req gateway.Request) (string, error)
}

type OrchestratorConfig struct {
	Conversation *Conversation
	Store        *SessionStore
	Gateway      Sender
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Orchestrator turns user input into gateway calls and keeps the
// conversation and its stored session in step.
type Orchestrator struct {
	conv    *Conversation
	store   *SessionStore
	gateway Sender
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		conv:    cfg.Conversation,
		store:   cfg.Store,
		gateway: cfg.Gateway,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
}

func (o *Orchestrator) Conversation() *Conversation { return o.conv }
func (o *Orchestrator) Store() *SessionStore { return o.store }

// InitializeContext puts a fresh hidden context pair at the head of the
// transcript, replacing any previous one.
func (o *Orchestrator) InitializeContext(pageContent string) {
	ts := o.now().UnixMilli()
	o.conv.Update(func(st *State) {
		msgs := []models.ChatMessage{
			{Role: models.RoleUser, Content: contextPrefix + pageContent, Timestamp: ts, IsContext: true},
			{Role: models.RoleAssistant, Content: contextAck, Timestamp: ts, IsContext: true},
		}
		for _, m := range st.Messages {
			if !m.IsContext {
				msgs = append(msgs, m)
			}
		}
		st.Messages = msgs
	})
}

// UpdateContextWithHighlights rewrites the highlights section of the first
// context message and saves the session.
func (o *Orchestrator) UpdateContextWithHighlights(ctx context.Context, highlights []string) error {
	updated := false
	o.conv.Update(func(st *State) {
		for i := range st.Messages {
			if !st.Messages[i].IsContext {
				continue
			}
			st.Messages[i].Content = withHighlights(st.Messages[i].Content, highlights)
			updated = true
			return
		}
	})
	if !updated {
		return nil
	}
	return o.store.Save(ctx)
}

func withHighlights(base string, highlights []string) string {
	section := ""
	if len(highlights) > 0 {
		quoted := make([]string, len(highlights))
		for i, h := range highlights {
			quoted[i] = `"` + h + `"`
		}
		section = "\n" + highlightsMarker + "\n" + strings.Join(quoted, "\n") + "\n"
	}
	if head, _, found := strings.Cut(base, highlightsMarker); found {
		return strings.TrimSpace(head + section)
	}
	return strings.TrimSpace(base + "\n\n" + section)
}

// Send appends the user message, asks the model and appends its answer. On
// failure the error is recorded on the state and the session is still saved.
func (o *Orchestrator) Send(ctx context.Context, modelID, text string) (models.ChatMessage, error) {
	st := o.conv.Update(func(st *State) {
		st.Messages = append(st.Messages, models.ChatMessage{
			Role:      models.RoleUser,
			Content:   text,
			Timestamp: o.now().UnixMilli(),
		})
		st.IsProcessing = true
		st.Error = ""
	})
	o.metrics.ChatMessages.WithLabelValues(models.RoleUser).Inc()

	reply, err := o.gateway.Send(ctx, gateway.Request{
		Context: contextOf(st.Messages),
		Content: transcriptText(st.Messages),
		ModelID: modelID,
	})
	if err != nil {
		o.conv.Update(func(st *State) {
			st.IsProcessing = false
			st.Error = err.Error()
		})
		o.logger.Error().Err(err).Str("url", o.conv.URL()).Msg("chat send failed")
		if saveErr := o.store.Save(ctx); saveErr != nil {
			return models.ChatMessage{}, errors.Join(err, saveErr)
		}
		return models.ChatMessage{}, err
	}

	msg := models.ChatMessage{Role: models.RoleAssistant, Content: reply, Timestamp: o.now().UnixMilli()}
	o.conv.Update(func(st *State) {
		st.Messages = append(st.Messages, msg)
		st.IsProcessing = false
	})
	o.metrics.ChatMessages.WithLabelValues(models.RoleAssistant).Inc()
	return msg, o.store.Save(ctx)
}

// Transcript returns the visible messages, plus an error entry when the last
// send failed.
func (o *Orchestrator) Transcript() []models.ChatMessage {
	st := o.conv.Snapshot()
	out := visible(st.Messages)
	if st.Error != "" {
		out = append(out, models.ChatMessage{Role: RoleError, Content: st.Error, Error: st.Error})
	}
	return out
}

func visible(msgs []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsContext {
			out = append(out, m)
		}
	}
	return out
}

func contextOf(msgs []models.ChatMessage) string {
	for _, m := range msgs {
		if m.IsContext && m.Role == models.RoleUser {
			return m.Content
		}
	}
	return ""
}

func transcriptText(msgs []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range visible(msgs) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case models.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
