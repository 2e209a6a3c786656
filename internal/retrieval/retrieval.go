// Package retrieval assembles memory context for one query: keyword
// extraction, importance ranking, tiered fetches from the vault, a
// bounded sufficiency loop, and length-capped formatting.
package retrieval

import (
	"context"
	"time"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/llm"
	"github.com/fernwehlabs/mnema/internal/notify"
	"github.com/fernwehlabs/mnema/internal/persona"
	"github.com/fernwehlabs/mnema/internal/tagstore"
	"github.com/fernwehlabs/mnema/internal/vault"
)

// Tier names the source layer of a retrieved item.
type Tier string

const (
	TierProfile        Tier = "profile"
	TierSummary        Tier = "summary"
	TierFullTranscript Tier = "full_transcript"
)

// Item is one retrieved piece of memory, transient per query.
type Item struct {
	Tier    Tier
	Source  string
	Title   string
	Date    time.Time
	Snippet string
	Score   float64 // relevance when ranked, zero otherwise
}

// Candidate is one scored keyword from extraction.
type Candidate struct {
	Keyword       string  `json:"keyword"`
	InPromptScore float64 `json:"in_prompt_score"`
}

// Result collects everything one retrieval produced. All of it is
// transient; nothing here is persisted.
type Result struct {
	Query             string
	Candidates        []Candidate
	NewTopics         []Candidate // candidates without a score record, kept for discovery
	Items             []Item
	Context           string
	SummaryRequests   []string // tier-2 refs the evaluator asked for
	TranscriptRequest string   // summary ref whose full log the evaluator asked for
	RawEvaluation     string   // last raw evaluator response
}

// TopicSource lists the known topic names for the extraction prompt.
// *vault.Index satisfies it.
type TopicSource interface {
	Topics() []string
}

// Pipeline runs the retrieval stages in order. One instance serves many
// queries; each Retrieve call is strictly sequential, with tier-2/3
// fetches happening synchronously inside the evaluation loop.
type Pipeline struct {
	extract *Extractor
	fetch   *Fetcher
	eval    *Evaluator
	scores  *tagstore.Store
	topics  TopicSource
	budget  int
}

func New(cfg *config.Config, model llm.Client, store vault.Store, topics TopicSource, scores *tagstore.Store, who *persona.Persona, notifier notify.Notifier) *Pipeline {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	fetch := NewFetcher(cfg, store)
	return &Pipeline{
		extract: NewExtractor(model, who, notifier),
		fetch:   fetch,
		eval:    NewEvaluator(cfg, model, fetch, notifier),
		scores:  scores,
		topics:  topics,
		budget:  cfg.Retrieval.ContextBudget,
	}
}

// Retrieve assembles memory context for query. history carries recent
// conversation turns, oldest first. Failures along the way shrink the
// result instead of erroring: an empty item list with the no-memory
// sentinel is a valid outcome.
func (p *Pipeline) Retrieve(ctx context.Context, query string, history []string) *Result {
	res := &Result{Query: query}

	res.Candidates = p.extract.Extract(ctx, query, p.topics.Topics())

	ranked, fresh := Rank(res.Candidates, p.scores.Load())
	res.NewTopics = fresh

	items := p.fetch.Profiles(ranked)
	items, esc, raw := p.eval.Run(ctx, query, history, items)

	res.Items = items
	res.SummaryRequests = esc.SummaryRefs
	res.TranscriptRequest = esc.TranscriptRef
	res.RawEvaluation = raw
	res.Context = FinalContext(items, p.budget)
	return res
}
