// Package note renders and parses the markdown note formats the engine
// keeps in the vault: topic profiles and conversation summaries.
package note

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// Section headings of a profile note, always rendered in this order.
const (
	sectionOverview      = "Overview"
	sectionPriorContexts = "Prior Contexts"
	sectionUserOpinions  = "User Opinions"
	sectionOtherNotes    = "Other Notes"
)

var (
	headingRe     = regexp.MustCompile(`^##\s+(.+?)\s*$`)
	historyLineRe = regexp.MustCompile(`^\s*[-*]\s*\[\[([^\]]+)\]\]\s*:\s*(.*)$`)
)

// HistoryEntry is one (summary ref, text) pair of a profile history
// list. Lists are head-first: index 0 is the newest entry.
type HistoryEntry struct {
	Ref  string
	Text string
}

// Profile is a topic profile note (tier 1): everything known about one
// recurring topic, continuously merged across conversations.
type Profile struct {
	Topic            string
	Aliases          []string
	KeyThemes        []string
	Sentiment        string
	SentimentNotes   []string
	RelatedTopics    []string
	Created          time.Time
	Updated          time.Time
	LastMentionedIn  string
	MentionFrequency int

	Significance  string
	PriorContexts []HistoryEntry
	UserOpinions  []HistoryEntry
	OtherNotes    string
}

type profileFrontmatter struct {
	Topic            string    `yaml:"topic"`
	Aliases          []string  `yaml:"aliases,omitempty"`
	KeyThemes        []string  `yaml:"key_themes,omitempty"`
	Sentiment        string    `yaml:"sentiment,omitempty"`
	SentimentNotes   []string  `yaml:"sentiment_notes,omitempty"`
	RelatedTopics    []string  `yaml:"related_topics,omitempty"`
	Created          time.Time `yaml:"created,omitempty"`
	Updated          time.Time `yaml:"updated,omitempty"`
	LastMentionedIn  string    `yaml:"last_mentioned_in,omitempty"`
	MentionFrequency int       `yaml:"mention_frequency,omitempty"`
}

func NewProfile(topic string) *Profile {
	return &Profile{Topic: topic}
}

// Render serializes the profile as YAML frontmatter plus the four fixed
// sections. History entries render one per line so they survive a
// parse-back.
func (p *Profile) Render() (string, error) {
	fm, err := renderFrontmatter(profileFrontmatter{
		Topic:            p.Topic,
		Aliases:          p.Aliases,
		KeyThemes:        p.KeyThemes,
		Sentiment:        p.Sentiment,
		SentimentNotes:   p.SentimentNotes,
		RelatedTopics:    p.RelatedTopics,
		Created:          p.Created,
		Updated:          p.Updated,
		LastMentionedIn:  p.LastMentionedIn,
		MentionFrequency: p.MentionFrequency,
	})
	if err != nil {
		return "", fmt.Errorf("render profile: %w", err)
	}

	var b strings.Builder
	b.WriteString(fm)
	b.WriteString("\n## " + sectionOverview + "\n\n")
	if s := strings.TrimSpace(p.Significance); s != "" {
		b.WriteString(s + "\n")
	}
	b.WriteString("\n## " + sectionPriorContexts + "\n\n")
	b.WriteString(RenderHistoryList(p.PriorContexts))
	b.WriteString("\n## " + sectionUserOpinions + "\n\n")
	b.WriteString(RenderHistoryList(p.UserOpinions))
	b.WriteString("\n## " + sectionOtherNotes + "\n\n")
	if s := strings.TrimSpace(p.OtherNotes); s != "" {
		b.WriteString(s + "\n")
	}
	return b.String(), nil
}

// ParseProfile is tolerant: notes adopted from a hand-edited vault
// parse as far as they go, and unparsable pieces degrade to empty
// fields instead of failing.
func ParseProfile(content string) *Profile {
	var meta profileFrontmatter
	body, err := DecodeFrontmatter(content, &meta)
	if err != nil {
		if !errors.Is(err, ErrMissingFrontmatter) {
			log.Printf("[note] warning: unparsable profile frontmatter, keeping body only: %v", err)
		}
		body = content
	}

	p := &Profile{
		Topic:            meta.Topic,
		Aliases:          meta.Aliases,
		KeyThemes:        meta.KeyThemes,
		Sentiment:        meta.Sentiment,
		SentimentNotes:   meta.SentimentNotes,
		RelatedTopics:    NormalizeRefs(meta.RelatedTopics),
		Created:          meta.Created,
		Updated:          meta.Updated,
		LastMentionedIn:  NormalizeRef(meta.LastMentionedIn),
		MentionFrequency: meta.MentionFrequency,
	}

	sections := splitSections(body)
	p.Significance = strings.TrimSpace(sections[sectionOverview])
	p.PriorContexts = ParseHistoryList(sections[sectionPriorContexts])
	p.UserOpinions = ParseHistoryList(sections[sectionUserOpinions])
	p.OtherNotes = strings.TrimSpace(sections[sectionOtherNotes])
	return p
}

// splitSections partitions a markdown body by its ## headings. Text
// before the first heading is dropped; unknown headings are kept under
// their own name and simply go unused.
func splitSections(body string) map[string]string {
	sections := make(map[string]string)
	current := ""
	var buf strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = buf.String()
		}
		buf.Reset()
	}
	for _, line := range strings.Split(body, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			current = m[1]
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return sections
}

// RenderHistoryList writes one entry per line as "- [[ref]]: text".
// Newlines inside an entry are flattened so the line format round-trips.
func RenderHistoryList(entries []HistoryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		ref := NormalizeRef(e.Ref)
		if ref == "" {
			continue
		}
		text := strings.Join(strings.Fields(e.Text), " ")
		fmt.Fprintf(&b, "- [[%s]]: %s\n", ref, text)
	}
	return b.String()
}

// ParseHistoryList recovers (ref, text) pairs from rendered lines.
// Lines that do not match the entry format are skipped.
func ParseHistoryList(text string) []HistoryEntry {
	var entries []HistoryEntry
	for _, line := range strings.Split(text, "\n") {
		m := historyLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ref := NormalizeRef(m[1])
		if ref == "" {
			continue
		}
		entries = append(entries, HistoryEntry{Ref: ref, Text: strings.TrimSpace(m[2])})
	}
	return entries
}

// MergeHistory prepends new entries and drops any older entry sharing a
// ref with a newer one. Dedup by ref, newest wins, survivors keep their
// order.
func MergeHistory(existing, incoming []HistoryEntry) []HistoryEntry {
	merged := make([]HistoryEntry, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, e := range incoming {
		ref := NormalizeRef(e.Ref)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		merged = append(merged, HistoryEntry{Ref: ref, Text: e.Text})
	}
	for _, e := range existing {
		ref := NormalizeRef(e.Ref)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		merged = append(merged, HistoryEntry{Ref: ref, Text: e.Text})
	}
	return merged
}
