package obsidian

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	BehaviorCreate         = "create"
	BehaviorAppendSpecific = "append-specific"
	BehaviorAppendDaily    = "append-daily"

	defaultDailyFormat = "YYYY-MM-DD"
)

var ErrMissingNoteName = errors.New("note name is required")

type Note struct {
	Name             string
	Content          string
	Path             string
	Vault            string
	Behavior         string
	SpecificNoteName string
	DailyNoteFormat  string
}

// NoteURI builds an obsidian://new link for the note. Append behaviors target
// an existing note and separate the new content with a blank line.
func NoteURI(n Note, now time.Time) (string, error) {
	path := n.Path
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}

	content := n.Content
	var b strings.Builder
	b.WriteString("obsidian://new?file=")

	switch n.Behavior {
	case BehaviorAppendSpecific, BehaviorAppendDaily:
		name := n.SpecificNoteName
		if n.Behavior == BehaviorAppendDaily {
			format := n.DailyNoteFormat
			if format == "" {
				format = defaultDailyFormat
			}
			name = now.Format(GoLayout(format))
		}
		if name == "" {
			return "", ErrMissingNoteName
		}
		b.WriteString(encodeURIComponent(path + name))
		b.WriteString("&append=true")
		content = "\n\n" + content
	default:
		if n.Name == "" {
			return "", ErrMissingNoteName
		}
		b.WriteString(encodeURIComponent(path + n.Name))
	}

	b.WriteString("&content=")
	b.WriteString(encodeURIComponent(content))
	if n.Vault != "" {
		b.WriteString("&vault=")
		b.WriteString(encodeURIComponent(n.Vault))
	}
	return b.String(), nil
}

func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

var layoutTokens = []struct{ token, layout string }{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"DD", "02"},
	{"D", "2"},
	{"dddd", "Monday"},
	{"ddd", "Mon"},
	{"HH", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"ss", "05"},
	{"A", "PM"},
	{"a", "pm"},
}

// GoLayout converts a moment/dayjs style date format into a time layout.
// Text inside square brackets is kept literally.
func GoLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		matched := false
		for _, t := range layoutTokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}

// SanitizeFileName strips characters Obsidian cannot store in a note name.
// Windows additionally forbids ?%*|"<>.
func SanitizeFileName(name string, windows bool) string {
	name = strings.ReplaceAll(name, ":", "")
	bad := `/\`
	if windows {
		bad = `/\?%*|"<>`
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(bad, r) {
			return '-'
		}
		return r
	}, name)
}
