package interpreter

import (
	"regexp"
	"strings"
)

var (
	spaceBeforeColon = regexp.MustCompile(`"\s*:`)
	spaceAfterColon  = regexp.MustCompile(`:\s*"`)
	backslashRun     = regexp.MustCompile(`\\{3,}`)
	curlyQuotes      = strings.NewReplacer("“", `\"`, "”", `\"`)
	straightenQuotes = strings.NewReplacer("“", `"`, "”", `"`)
)

// sanitizeJSON repairs the usual damage in LLM-written JSON: unescaped quotes
// inside string values, curly quotes, raw control characters and stray
// whitespace around colons.
func sanitizeJSON(s string) string {
	s = escapeBareQuotes(s)
	s = unescapeStructuralQuotes(s)
	s = curlyQuotes.Replace(s)
	s = stripControl(s)
	s = spaceBeforeColon.ReplaceAllString(s, `":`)
	s = spaceAfterColon.ReplaceAllString(s, `:"`)
	return backslashRun.ReplaceAllString(s, `\`)
}

func escapeBareQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			b.WriteString(`\"`)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// unescapeStructuralQuotes turns \" back into " where the quote opens or
// closes a JSON token: after {[,: or before }],: ignoring whitespace. Both
// passes look at their own input, not at their partial output.
func unescapeStructuralQuotes(s string) string {
	s = replaceEscapedQuotes(s, func(src string, i int) bool {
		j := i - 1
		for j >= 0 && isSpace(src[j]) {
			j--
		}
		return j >= 0 && strings.IndexByte("{[,:", src[j]) >= 0
	})
	return replaceEscapedQuotes(s, func(src string, i int) bool {
		j := i + 2
		for j < len(src) && isSpace(src[j]) {
			j++
		}
		return j < len(src) && strings.IndexByte("}],:", src[j]) >= 0
	})
}

// replaceEscapedQuotes rewrites each \" at index i to " when keep reports
// true. Matches do not overlap.
func replaceEscapedQuotes(src string, keep func(src string, i int) bool) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		if src[i] == '\\' && i+1 < len(src) && src[i+1] == '"' {
			if keep(src, i) {
				b.WriteByte('"')
			} else {
				b.WriteString(`\"`)
			}
			i++
			continue
		}
		b.WriteByte(src[i])
	}
	return b.String()
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1f || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// braceSpan returns the text from the first '{' to the last '}'.
func braceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
