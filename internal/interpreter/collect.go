package interpreter

import (
	"regexp"
	"strconv"

	"pagechat/internal/models"
)

// placeholderRe matches {{"prompt"}}, {{prompt:"prompt"}} and the same with a
// trailing |filter chain. Group 1 is the prompt text, group 2 the chain
// including its leading pipe.
var placeholderRe = regexp.MustCompile(`\{\{(?:prompt:)?"(.*?)"(\|.*?)?\}\}`)

// CollectPromptVariables scans the template body, then every property value,
// then every field value, and returns one variable per distinct prompt text in
// first-seen order. tpl may be nil.
func CollectPromptVariables(tpl *models.Template, fields []models.Field) []models.PromptVariable {
	var (
		vars []models.PromptVariable
		seen = map[string]bool{}
	)
	add := func(text string) {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			prompt := m[1]
			if seen[prompt] {
				continue
			}
			seen[prompt] = true
			vars = append(vars, models.PromptVariable{
				Key:     "prompt_" + strconv.Itoa(len(vars)+1),
				Prompt:  prompt,
				Filters: m[2],
			})
		}
	}

	if tpl != nil {
		add(tpl.NoteContentFormat)
		for _, p := range tpl.Properties {
			add(p.Value)
		}
	}
	for _, f := range fields {
		add(f.Value)
	}
	return vars
}
