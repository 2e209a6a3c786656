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
)

// The loop asks the judge at most twice: once over tier-1 context and,
// after a tier-2 escalation, once more to decide on a full log.
const maxEvalRounds = 2

const evaluationPrompt = `You are the memory sufficiency judge for a companion agent.
Decide whether the retrieved memory below is enough to answer the user's message well.

Rules:
1. Set sufficient_for_response true only if the memory already covers the message
2. If a conversation mentioned in the memory needs detail, list its note name in next_summary_notes_to_fetch
3. If one conversation summary needs its complete log, set requires_full_log_for_summary_note to its note name
4. Only use note names that appear in the memory, never invent them

Return a strict JSON object only (no markdown, no extra keys):
{"sufficient_for_response":false,"next_summary_notes_to_fetch":[],"requires_full_log_for_summary_note":null,"reasoning":"..."}

Recent conversation:
%s

User message:
%s

Retrieved memory:
%s`

type evalResponse struct {
	SufficientForResponse     bool     `json:"sufficient_for_response"`
	NextSummaryNotesToFetch   []string `json:"next_summary_notes_to_fetch"`
	RequiresFullLogForSummary string   `json:"requires_full_log_for_summary_note"`
	Reasoning                 string   `json:"reasoning"`
}

// Escalation records which deeper tiers the judge asked for.
type Escalation struct {
	SummaryRefs   []string
	TranscriptRef string
}

// Evaluator runs the bounded sufficiency loop. Round 0 may escalate to
// tier-2 summaries, round 1 to a single tier-3 full log; there is no
// third round under any input.
type Evaluator struct {
	model        llm.Client
	fetch        *Fetcher
	notifier     notify.Notifier
	historyTurns int
	budget       int
}

func NewEvaluator(cfg *config.Config, model llm.Client, fetch *Fetcher, notifier notify.Notifier) *Evaluator {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Evaluator{
		model:        model,
		fetch:        fetch,
		notifier:     notifier,
		historyTurns: cfg.Retrieval.HistoryTurns,
		budget:       cfg.Retrieval.ContextBudget,
	}
}

// Run judges the accumulated items and fetches what the judge asks for,
// within the round limit. Model or parse failures end the loop with
// whatever was accumulated so far.
func (e *Evaluator) Run(ctx context.Context, query string, history []string, items []Item) ([]Item, Escalation, string) {
	var esc Escalation
	var raw string

	if len(items) == 0 {
		return items, esc, raw
	}

	for round := 0; round < maxEvalRounds; round++ {
		resp, err := e.model.Invoke(ctx, e.prompt(query, history, items))
		if err != nil {
			e.fail(round, "evaluation call failed", err)
			return items, esc, raw
		}
		raw = resp

		var ev evalResponse
		if err := llm.DecodeJSON(resp, &ev); err != nil {
			e.fail(round, "unparsable evaluation response", err)
			return items, esc, raw
		}
		if ev.SufficientForResponse {
			return items, esc, raw
		}

		fetched := false
		if round == 0 && len(ev.NextSummaryNotesToFetch) > 0 {
			esc.SummaryRefs = append(esc.SummaryRefs, note.NormalizeRefs(ev.NextSummaryNotesToFetch)...)
			if more := e.fetch.Summaries(ev.NextSummaryNotesToFetch); len(more) > 0 {
				items = append(items, more...)
				fetched = true
			}
		}
		if round == 1 && ev.RequiresFullLogForSummary != "" {
			esc.TranscriptRef = note.NormalizeRef(ev.RequiresFullLogForSummary)
			if item, ok := e.fetch.Transcript(ev.RequiresFullLogForSummary); ok {
				items = append(items, item)
			}
			return items, esc, raw
		}
		if !fetched {
			return items, esc, raw
		}
	}
	return items, esc, raw
}

func (e *Evaluator) prompt(query string, history []string, items []Item) string {
	turns := "(none)"
	if n := len(history); n > 0 {
		if n > e.historyTurns {
			history = history[n-e.historyTurns:]
		}
		turns = strings.Join(history, "\n")
	}
	return fmt.Sprintf(evaluationPrompt, turns, query, EvalContext(items, e.budget))
}

func (e *Evaluator) fail(round int, msg string, err error) {
	log.Printf("[retrieval] warning: %s (round %d): %v", msg, round, err)
	e.notifier.Notify(notify.Event{Stage: "retrieval", Message: msg, Err: err})
}
