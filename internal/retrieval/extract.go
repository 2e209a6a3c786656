package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/llm"
	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/notify"
	"github.com/fernwehlabs/mnema/internal/persona"
)

const extractPrompt = `You are the memory indexer for %s, a personal companion.
Pick the memory topics worth recalling for the user's message.

Rules:
1. Select at most %d known topics, the ones most relevant to the message
2. Propose at most %d new topics for subjects the known list does not cover
3. Score every item 0-100 for how central it is to this message
4. Keep topic names short, lowercase, hyphenated

Return a strict JSON array only (no markdown, no extra keys):
[{"keyword":"...","in_prompt_score":80}]

Known topics:
%s

Message:
%s`

// Extractor turns one utterance into scored topic candidates.
type Extractor struct {
	model    llm.Client
	who      *persona.Persona
	notifier notify.Notifier
}

func NewExtractor(model llm.Client, who *persona.Persona, notifier notify.Notifier) *Extractor {
	if who == nil {
		who = persona.Default()
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Extractor{model: model, who: who, notifier: notifier}
}

// Extract asks the model for topic candidates. Any model or parse
// failure yields an empty list and retrieval continues without
// keywords.
func (e *Extractor) Extract(ctx context.Context, utterance string, known []string) []Candidate {
	topics := "(none yet)"
	if len(known) > 0 {
		topics = strings.Join(known, ", ")
	}
	prompt := fmt.Sprintf(extractPrompt,
		e.who.Name, config.DefaultTopicPicks, config.DefaultTopicProposals, topics, utterance)

	resp, err := e.model.Invoke(ctx, prompt)
	if err != nil {
		e.fail("keyword extraction failed", err)
		return nil
	}

	var candidates []Candidate
	if err := llm.DecodeJSON(resp, &candidates); err != nil {
		e.fail("unparsable keyword response", err)
		return nil
	}

	out := candidates[:0]
	for _, c := range candidates {
		c.Keyword = note.NormalizeRef(c.Keyword)
		if c.Keyword == "" {
			continue
		}
		if c.InPromptScore < 0 {
			c.InPromptScore = 0
		} else if c.InPromptScore > 100 {
			c.InPromptScore = 100
		}
		out = append(out, c)
	}
	return out
}

func (e *Extractor) fail(msg string, err error) {
	log.Printf("[retrieval] warning: %s: %v", msg, err)
	e.notifier.Notify(notify.Event{Stage: "retrieval", Message: msg, Err: err})
}
