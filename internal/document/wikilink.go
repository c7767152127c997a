package document

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// snippetRadius is how much surrounding text is captured on each side of a
// wiki-link marker.
const snippetRadius = 50

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// WikiLink is one [[target]] reference extracted from a document body.
type WikiLink struct {
	TargetSlug     string
	LinkText       string
	ContextSnippet string
}

// ExtractWikiLinks scans body for [[target]] markers. An optional
// [[target|display]] alias keeps the target before the pipe. Two targets
// that slugify identically collapse into one link; the first occurrence
// wins.
func ExtractWikiLinks(body string) []WikiLink {
	matches := wikiLinkPattern.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	links := make([]WikiLink, 0, len(matches))
	for _, match := range matches {
		target := body[match[2]:match[3]]
		if pipe := strings.Index(target, "|"); pipe >= 0 {
			target = target[:pipe]
		}
		target = strings.TrimSpace(target)
		slug := Slugify(target)
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		links = append(links, WikiLink{
			TargetSlug:     slug,
			LinkText:       target,
			ContextSnippet: snippet(body, match[0], match[1]),
		})
	}
	return links
}

func snippet(body string, start, end int) string {
	from := start - snippetRadius
	if from < 0 {
		from = 0
	}
	to := end + snippetRadius
	if to > len(body) {
		to = len(body)
	}
	return strings.TrimSpace(strings.ReplaceAll(body[from:to], "\n", " "))
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify normalizes free text into a URL-safe slug: diacritics stripped,
// lowercased, runs of non-alphanumerics collapsed to single hyphens.
func Slugify(text string) string {
	normalized, _, err := transform.String(deaccent, text)
	if err != nil {
		normalized = text
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(normalized) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
