package interpreter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"pagechat/internal/models"
)

const NoteNameFieldID = "note-name-field"

// FilterApplier runs a filter chain (without its leading pipe) over a value.
type FilterApplier interface {
	Apply(value, chain string) string
}

// NoteNameAdjuster is notified after the note name field has been rewritten.
type NoteNameAdjuster func(field models.Field)

// ReplacePromptVariables substitutes answered placeholders in every field and
// returns the rewritten fields in the same order. Placeholders whose prompt
// has no variable or no response are left untouched.
func ReplacePromptVariables(
	fields []models.Field,
	vars []models.PromptVariable,
	responses []models.PromptResponse,
	filters FilterApplier,
	adjust NoteNameAdjuster,
) []models.Field {
	keyByPrompt := make(map[string]string, len(vars))
	for _, v := range vars {
		if _, ok := keyByPrompt[v.Prompt]; !ok {
			keyByPrompt[v.Prompt] = v.Key
		}
	}
	answerByKey := make(map[string]any, len(responses))
	for _, r := range responses {
		if _, ok := answerByKey[r.Key]; !ok && r.UserResponse != nil {
			answerByKey[r.Key] = r.UserResponse
		}
	}

	out := make([]models.Field, len(fields))
	for i, f := range fields {
		f.Value = placeholderRe.ReplaceAllStringFunc(f.Value, func(match string) string {
			m := placeholderRe.FindStringSubmatch(match)
			key, ok := keyByPrompt[m[1]]
			if !ok {
				return match
			}
			answer, ok := answerByKey[key]
			if !ok {
				return match
			}
			value := stringifyAnswer(answer)
			if m[2] != "" && filters != nil {
				value = filters.Apply(value, m[2][1:])
			}
			return value
		})
		if f.ID == NoteNameFieldID && adjust != nil {
			adjust(f)
		}
		out[i] = f
	}
	return out
}

func stringifyAnswer(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
