package obsidian

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pagechat/internal/models"
)

var numberPrefix = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)`)

// Frontmatter renders properties as a YAML block delimited by "---" lines.
// Property order is preserved.
func Frontmatter(props []models.Property) (string, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range props {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: p.Name},
			propertyNode(p),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(props) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return "", fmt.Errorf("encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("encode frontmatter: %w", err)
		}
	}
	buf.WriteString("---\n")
	return buf.String(), nil
}

func propertyNode(p models.Property) *yaml.Node {
	switch p.Type {
	case "multitext":
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range strings.Split(p.Value, ",") {
			item = strings.TrimSpace(item)
			n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item}
			if strings.Contains(item, "[[") && strings.Contains(item, "]]") {
				n.Style = yaml.DoubleQuotedStyle
			}
			seq.Content = append(seq.Content, n)
		}
		return seq
	case "number":
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, p.Value)
		m := numberPrefix.FindString(cleaned)
		f, err := strconv.ParseFloat(m, 64)
		if m == "" || err != nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(f, 'f', -1, 64)}
	case "checkbox":
		v := strings.EqualFold(p.Value, "true") || p.Value == "1"
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Value, Style: yaml.DoubleQuotedStyle}
	}
}
