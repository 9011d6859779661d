package interpreter

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"pagechat/internal/metrics"
	"pagechat/internal/models"
)

var (
	errJSONRecoveryExhausted = errors.New("json recovery exhausted")
	errNoBraces              = errors.New("no json object found in response")
	errNoPromptContent       = errors.New("could not extract prompt content")
	errTrailingData          = errors.New("unexpected data after json value")

	promptOneRe = regexp.MustCompile(`"prompt_1":\s*"((?s:.*?))"\s*\}`)
)

// recoveryStage rewrites the raw reply into something json.Unmarshal may
// accept. Stages run in order until one decodes.
type recoveryStage struct {
	name    string
	prepare func(raw string) (string, error)
}

var recoveryStages = []recoveryStage{
	{name: "direct", prepare: func(raw string) (string, error) {
		return sanitizeJSON(raw), nil
	}},
	{name: "braces_minimal", prepare: func(raw string) (string, error) {
		span, ok := braceSpan(raw)
		if !ok {
			return "", errNoBraces
		}
		return straightenQuotes.Replace(span), nil
	}},
	{name: "braces_full", prepare: func(raw string) (string, error) {
		span, ok := braceSpan(raw)
		if !ok {
			return "", errNoBraces
		}
		return sanitizeJSON(span), nil
	}},
	{name: "rebuild", prepare: rebuildPromptOne},
}

// rebuildPromptOne salvages only the first answer when nothing else parses.
func rebuildPromptOne(raw string) (string, error) {
	span, ok := braceSpan(raw)
	if !ok {
		return "", errNoBraces
	}
	m := promptOneRe.FindStringSubmatch(span)
	if m == nil {
		return "", errNoPromptContent
	}
	value, err := json.Marshal(m[1])
	if err != nil {
		return "", err
	}
	return `{"prompts_responses":{"prompt_1":` + string(value) + `}}`, nil
}

func decodeReply(raw string) (any, string, error) {
	var errs []error
	for _, st := range recoveryStages {
		prepared, err := st.prepare(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out, err := decodeJSON(prepared)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return out, st.name, nil
	}
	return nil, "", errors.Join(append([]error{errJSONRecoveryExhausted}, errs...)...)
}

// decodeJSON keeps numbers as json.Number so answers keep their literal
// digits, and rejects trailing data like json.Unmarshal does.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return out, nil
}

// ParseResponse maps an LLM reply onto vars. It never fails: an unusable
// reply is logged and yields an empty slice, a usable one yields exactly one
// response per variable in the same order.
func ParseResponse(logger zerolog.Logger, raw string, vars []models.PromptVariable) []models.PromptResponse {
	decoded, stage, err := decodeReply(raw)
	if err != nil {
		metrics.Global().ParseStages.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Str("response", truncate(raw, 2000)).Msg("failed to parse llm response")
		return []models.PromptResponse{}
	}
	metrics.Global().ParseStages.WithLabelValues(stage).Inc()
	logger.Debug().Str("stage", stage).Msg("llm response decoded")

	root, _ := decoded.(map[string]any)
	answers, ok := root["prompts_responses"].(map[string]any)
	if !ok {
		logger.Debug().Msg("no prompts_responses in llm response")
		return []models.PromptResponse{}
	}

	out := make([]models.PromptResponse, 0, len(vars))
	for _, v := range vars {
		out = append(out, models.PromptResponse{
			Key:          v.Key,
			Prompt:       v.Prompt,
			UserResponse: normalizeAnswer(answers[v.Key]),
		})
	}
	return out
}

// normalizeAnswer turns falsy JSON values into "" and unescapes literal \n
// sequences in strings.
func normalizeAnswer(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if !t {
			return ""
		}
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return ""
		}
	case float64:
		if t == 0 {
			return ""
		}
	case string:
		t = strings.ReplaceAll(t, `\n`, "\n")
		return strings.ReplaceAll(t, "\r", "")
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
