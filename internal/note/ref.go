package note

import (
	"strings"
	"unicode"
)

// NormalizeRef strips wiki-link brackets and the .md extension from a
// note reference.
func NormalizeRef(ref string) string {
	r := strings.TrimSpace(ref)
	r = strings.TrimPrefix(r, "[[")
	r = strings.TrimSuffix(r, "]]")
	r = strings.TrimSuffix(strings.TrimSpace(r), ".md")
	return strings.TrimSpace(r)
}

// NormalizeRefs normalizes and deduplicates, keeping first-seen order.
func NormalizeRefs(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		n := NormalizeRef(ref)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// SanitizeTopic converts a topic name into a safe note file stem.
// Letters and digits survive, everything else collapses to a single
// dash.
func SanitizeTopic(topic string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(topic)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
