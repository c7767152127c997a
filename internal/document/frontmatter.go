package document

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterFence = "---"

// ParseFrontmatter splits content into a flat key→string map and the
// remaining body. Content without a leading fence, or with YAML that fails
// to parse, is treated as all body: a malformed document is still a
// document.
func ParseFrontmatter(content string) (map[string]string, string) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, frontmatterFence+"\n") {
		return map[string]string{}, content
	}

	rest := normalized[len(frontmatterFence)+1:]
	idx := strings.Index(rest, "\n"+frontmatterFence)
	if idx < 0 {
		return map[string]string{}, content
	}
	raw := rest[:idx]
	body := rest[idx+len(frontmatterFence)+1:]
	body = strings.TrimLeft(body, "\n")

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]string{}, content
	}

	frontmatter := make(map[string]string, len(parsed))
	for key, value := range parsed {
		frontmatter[key] = flattenValue(value)
	}
	return frontmatter, body
}

func flattenValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = flattenValue(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// firstHeading returns the text of the first markdown heading in body, or
// empty.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
