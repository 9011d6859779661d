package filters

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pagechat/internal/obsidian"
)

// Func transforms a value. args is the raw argument text with the
// surrounding parentheses removed, or "" when the filter has none.
type Func func(value, args string) string

// Applier runs a pipe-delimited filter chain such as
// `lower|replace:("a":"b")|wikilink`.
type Applier struct {
	funcs  map[string]Func
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Applier {
	a := &Applier{funcs: map[string]Func{}, logger: logger}
	a.Register(upper, "upper", "uppercase")
	a.Register(lower, "lower", "lowercase")
	a.Register(trim, "trim")
	a.Register(capitalize, "capitalize")
	a.Register(title, "title")
	a.Register(replace, "replace")
	a.Register(blockquote, "blockquote")
	a.Register(wikilink, "wikilink")
	a.Register(list, "list")
	a.Register(safeName, "safe_name")
	return a
}

func (a *Applier) Register(fn Func, names ...string) {
	for _, n := range names {
		a.funcs[n] = fn
	}
}

// Apply runs chain over value left to right. Unknown filters are skipped.
func (a *Applier) Apply(value, chain string) string {
	for _, f := range splitChain(chain) {
		name, args := splitFilter(f)
		fn, ok := a.funcs[name]
		if !ok {
			a.logger.Debug().Str("filter", name).Msg("unknown filter ignored")
			continue
		}
		value = fn(value, args)
	}
	return value
}

// splitChain splits on '|' outside quotes and parentheses.
func splitChain(chain string) []string {
	var (
		out   []string
		cur   strings.Builder
		depth int
		quote rune
	)
	for _, r := range chain {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == '|' && depth == 0:
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func splitFilter(f string) (name, args string) {
	name, args, ok := strings.Cut(f, ":")
	if !ok {
		return strings.TrimSpace(f), ""
	}
	args = strings.TrimSpace(args)
	if strings.HasPrefix(args, "(") && strings.HasSuffix(args, ")") {
		args = args[1 : len(args)-1]
	}
	return strings.TrimSpace(name), args
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func upper(v, _ string) string { return strings.ToUpper(v) }
func lower(v, _ string) string { return strings.ToLower(v) }
func trim(v, _ string) string  { return strings.TrimSpace(v) }

func capitalize(v, _ string) string {
	r, size := utf8.DecodeRuneInString(v)
	if r == utf8.RuneError {
		return v
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(v[size:])
}

func title(v, _ string) string {
	return cases.Title(language.Und).String(v)
}

// replace takes one or more "old":"new" pairs separated by commas.
func replace(v, args string) string {
	for _, pair := range splitPairs(args) {
		old, repl, ok := cutUnquoted(pair, ':')
		if !ok {
			continue
		}
		old = unquote(old)
		if old == "" {
			continue
		}
		v = strings.ReplaceAll(v, old, unquote(repl))
	}
	return v
}

// cutUnquoted is strings.Cut on the first sep that is not inside quotes.
func cutUnquoted(s string, sep byte) (before, after string, found bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == sep:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func splitPairs(args string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	for _, r := range args {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == ',':
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func blockquote(v, _ string) string {
	lines := strings.Split(v, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

func wikilink(v, _ string) string {
	if strings.TrimSpace(v) == "" {
		return v
	}
	return "[[" + v + "]]"
}

func list(v, _ string) string {
	var b strings.Builder
	for _, l := range strings.Split(v, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(l)
	}
	return b.String()
}

func safeName(v, _ string) string {
	return obsidian.SanitizeFileName(v, false)
}
