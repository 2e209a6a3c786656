package note

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Summary is a conversation summary note (tier 2): the immutable digest
// of one concluded conversation.
type Summary struct {
	Title        string
	Date         time.Time
	Type         string
	Participants []string
	Tags         []string
	Transcript   string
	Mood         string
	KeyTakeaways []string
	ActionItems  []string
	Body         string
}

type summaryFrontmatter struct {
	Title        string    `yaml:"title"`
	Date         time.Time `yaml:"date,omitempty"`
	Type         string    `yaml:"type,omitempty"`
	Participants []string  `yaml:"participants,omitempty"`
	Tags         []string  `yaml:"tags,omitempty"`
	Transcript   string    `yaml:"transcript,omitempty"`
	Mood         string    `yaml:"mood,omitempty"`
	KeyTakeaways []string  `yaml:"key_takeaways,omitempty"`
	ActionItems  []string  `yaml:"action_items,omitempty"`
}

// ParseSummary is tolerant the same way ParseProfile is: a note without
// usable frontmatter still yields its body.
func ParseSummary(content string) *Summary {
	var meta summaryFrontmatter
	body, err := DecodeFrontmatter(content, &meta)
	if err != nil {
		if !errors.Is(err, ErrMissingFrontmatter) {
			log.Printf("[note] warning: unparsable summary frontmatter, keeping body only: %v", err)
		}
		body = content
	}

	return &Summary{
		Title:        meta.Title,
		Date:         meta.Date,
		Type:         meta.Type,
		Participants: meta.Participants,
		Tags:         meta.Tags,
		Transcript:   NormalizeRef(meta.Transcript),
		Mood:         meta.Mood,
		KeyTakeaways: meta.KeyTakeaways,
		ActionItems:  meta.ActionItems,
		Body:         strings.TrimSpace(body),
	}
}

func (s *Summary) Render() (string, error) {
	fm, err := renderFrontmatter(summaryFrontmatter{
		Title:        s.Title,
		Date:         s.Date,
		Type:         s.Type,
		Participants: s.Participants,
		Tags:         s.Tags,
		Transcript:   s.Transcript,
		Mood:         s.Mood,
		KeyTakeaways: s.KeyTakeaways,
		ActionItems:  s.ActionItems,
	})
	if err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return fm + "\n" + strings.TrimSpace(s.Body) + "\n", nil
}

// Topics returns the summary's tags as normalized topic names.
func (s *Summary) Topics() []string {
	return NormalizeRefs(s.Tags)
}

// Excerpt returns the leading max runes of the note's "## Summary"
// section when one exists, otherwise of the whole body.
func (s *Summary) Excerpt(max int) string {
	text := s.Body
	if section, ok := splitSections(s.Body)["Summary"]; ok {
		if trimmed := strings.TrimSpace(section); trimmed != "" {
			text = trimmed
		}
	}
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max]))
}
