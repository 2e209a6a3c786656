// Package consolidate merges concluded conversations into the per-topic
// profile notes, the history ledger, and the tag score store. Topics of
// one conversation run in parallel; a failure aborts only its topic.
package consolidate

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/ledger"
	"github.com/fernwehlabs/mnema/internal/llm"
	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/notify"
	"github.com/fernwehlabs/mnema/internal/persona"
	"github.com/fernwehlabs/mnema/internal/tagstore"
	"github.com/fernwehlabs/mnema/internal/vault"
)

const consolidationPrompt = `You are the memory keeper for %s, a personal companion.
Merge what this conversation reveals about the topic "%s" into its profile.

Rules:
1. Rewrite aliases, key_themes, sentiment, sentiment_notes, significance, related_topics and other_notes to reflect everything known now
2. Prepend a new prior_contexts entry for this conversation, with ref "%s"
3. Add a user_opinions entry with the same ref only if the user voiced an opinion
4. Preserve the existing entries unchanged, never invent or drop any
5. Set importance 0-100 only if this conversation changed how much the topic matters, otherwise null
6. Keep entry texts short, one line each

Return a strict JSON object only (no markdown, no extra keys):
{"aliases":[],"key_themes":[],"sentiment":"","sentiment_notes":[],"significance":"","related_topics":[],"prior_contexts":[{"ref":"","text":""}],"user_opinions":[{"ref":"","text":""}],"other_notes":"","importance":null}

Character context:
%s

Conversation:
%s

Existing profile:
%s

Prior context entries (newest first):
%s

User opinion entries (newest first):
%s`

type historyEntry struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

type consolidationResponse struct {
	Aliases        []string       `json:"aliases"`
	KeyThemes      []string       `json:"key_themes"`
	Sentiment      string         `json:"sentiment"`
	SentimentNotes []string       `json:"sentiment_notes"`
	Significance   string         `json:"significance"`
	RelatedTopics  []string       `json:"related_topics"`
	PriorContexts  []historyEntry `json:"prior_contexts"`
	UserOpinions   []historyEntry `json:"user_opinions"`
	OtherNotes     string         `json:"other_notes"`
	Importance     *int           `json:"importance"`
}

// Consolidator owns the write side of memory. One instance serves many
// conversations; each Run fans out across the conversation's topics.
type Consolidator struct {
	model    llm.Client
	store    vault.Store
	scores   *tagstore.Store
	history  *ledger.Ledger
	who      *persona.Persona
	notifier notify.Notifier

	profilesFolder    string
	summariesFolder   string
	transcriptsFolder string
}

func New(cfg *config.Config, model llm.Client, store vault.Store, scores *tagstore.Store, history *ledger.Ledger, who *persona.Persona, notifier notify.Notifier) *Consolidator {
	if who == nil {
		who = persona.Default()
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Consolidator{
		model:             model,
		store:             store,
		scores:            scores,
		history:           history,
		who:               who,
		notifier:          notifier,
		profilesFolder:    cfg.Vault.ProfilesFolder,
		summariesFolder:   cfg.Vault.SummariesFolder,
		transcriptsFolder: cfg.Vault.TranscriptsFolder,
	}
}

// Run consolidates the conversation behind one summary ref. Topics run
// in parallel and fail independently; the run is recorded as completed
// unless every topic failed, so a later sweep can retry a conversation
// that produced nothing.
func (c *Consolidator) Run(ctx context.Context, ref string) error {
	ref = note.NormalizeRef(ref)
	if ref == "" {
		return fmt.Errorf("empty summary ref")
	}

	content, err := c.store.Read(path.Join(c.summariesFolder, ref+".md"))
	if err != nil {
		return fmt.Errorf("read summary %s: %w", ref, err)
	}
	sum := note.ParseSummary(content)
	topics := sum.Topics()
	runID := uuid.NewString()

	if len(topics) == 0 {
		log.Printf("[consolidate] %s has no topics, recording as done", ref)
		if err := c.history.RecordConsolidation(ref, runID, nil); err != nil {
			return fmt.Errorf("record consolidation: %w", err)
		}
		return nil
	}

	conversation := c.conversationText(sum)

	type outcome struct {
		topic string
		err   error
	}
	results := make(chan outcome, len(topics))
	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			results <- outcome{topic: topic, err: c.consolidateTopic(ctx, topic, ref, conversation)}
		}(topic)
	}
	wg.Wait()
	close(results)

	failed := 0
	for out := range results {
		if out.err == nil {
			continue
		}
		failed++
		log.Printf("[consolidate] warning: topic %q: %v", out.topic, out.err)
		c.notifier.Notify(notify.Event{
			Stage:   "consolidate",
			Topic:   out.topic,
			Message: "topic consolidation failed",
			Err:     out.err,
		})
	}
	if failed == len(topics) {
		return fmt.Errorf("all %d topic consolidations failed for %s", failed, ref)
	}

	if err := c.history.RecordConsolidation(ref, runID, topics); err != nil {
		return fmt.Errorf("record consolidation: %w", err)
	}
	c.notifier.Notify(notify.Event{
		Stage:   "consolidate",
		Message: fmt.Sprintf("consolidated %s into %d topics (%d failed)", ref, len(topics), failed),
	})
	return nil
}

// conversationText prefers the full transcript over the summary body.
func (c *Consolidator) conversationText(sum *note.Summary) string {
	if tref := note.NormalizeRef(sum.Transcript); tref != "" {
		raw, err := c.store.Read(path.Join(c.transcriptsFolder, tref+".md"))
		if err == nil {
			if body, err := note.DecodeFrontmatter(raw, &struct{}{}); err == nil {
				return strings.TrimSpace(body)
			}
			return strings.TrimSpace(raw)
		}
		log.Printf("[consolidate] transcript %q unreadable, using summary body: %v", tref, err)
	}
	return strings.TrimSpace(sum.Body)
}

func (c *Consolidator) consolidateTopic(ctx context.Context, topic, ref, conversation string) error {
	profilePath := path.Join(c.profilesFolder, note.SanitizeTopic(topic)+".md")

	prof := note.NewProfile(topic)
	exists := c.store.Exists(profilePath)
	if exists {
		content, err := c.store.Read(profilePath)
		if err != nil {
			return fmt.Errorf("read profile: %w", err)
		}
		prof = note.ParseProfile(content)
		if prof.Topic == "" {
			prof.Topic = topic
		}
	}

	priors, opinions := c.recoverHistory(topic, prof)
	prof.PriorContexts = priors
	prof.UserOpinions = opinions

	resp, err := c.invoke(ctx, topic, ref, conversation, prof, priors, opinions)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	prof.Aliases = resp.Aliases
	prof.KeyThemes = resp.KeyThemes
	prof.Sentiment = resp.Sentiment
	prof.SentimentNotes = resp.SentimentNotes
	prof.Significance = resp.Significance
	prof.RelatedTopics = note.NormalizeRefs(resp.RelatedTopics)
	prof.OtherNotes = resp.OtherNotes
	prof.PriorContexts = note.MergeHistory(priors, toEntries(resp.PriorContexts))
	prof.UserOpinions = note.MergeHistory(opinions, toEntries(resp.UserOpinions))
	if prof.Created.IsZero() {
		prof.Created = now
	}
	prof.Updated = now

	var updated tagstore.Score
	err = c.scores.Update(func(m map[string]tagstore.Score) {
		rec := m[topic]
		if resp.Importance != nil {
			rec.BaseImportance = tagstore.ClampImportance(*resp.Importance)
		}
		rec.MentionFrequency++
		rec.LastMentionedIn = ref
		m[topic] = rec
		updated = rec
	})
	if err != nil {
		log.Printf("[consolidate] warning: save scores for %q: %v", topic, err)
	} else {
		prof.LastMentionedIn = updated.LastMentionedIn
		prof.MentionFrequency = updated.MentionFrequency
	}

	content, err := prof.Render()
	if err != nil {
		return fmt.Errorf("render profile: %w", err)
	}
	if exists {
		if err := c.store.Modify(profilePath, content); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
	} else {
		if err := c.store.CreateFolder(c.profilesFolder); err != nil {
			return fmt.Errorf("create profiles folder: %w", err)
		}
		if err := c.store.Create(profilePath, content); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
	}

	if err := c.history.ReplaceHistory(topic, ledger.KindContext, prof.PriorContexts); err != nil {
		log.Printf("[consolidate] warning: ledger contexts for %q: %v", topic, err)
	}
	if err := c.history.ReplaceHistory(topic, ledger.KindOpinion, prof.UserOpinions); err != nil {
		log.Printf("[consolidate] warning: ledger opinions for %q: %v", topic, err)
	}
	return nil
}

// recoverHistory returns the topic's two history lists. The ledger is
// the source of truth; a topic the ledger has never seen falls back to
// the entries parsed out of the note body and backfills the ledger.
func (c *Consolidator) recoverHistory(topic string, prof *note.Profile) ([]note.HistoryEntry, []note.HistoryEntry) {
	has, err := c.history.HasHistory(topic)
	if err != nil {
		log.Printf("[consolidate] warning: ledger lookup for %q: %v", topic, err)
		return prof.PriorContexts, prof.UserOpinions
	}
	if !has {
		if len(prof.PriorContexts) > 0 {
			if err := c.history.ReplaceHistory(topic, ledger.KindContext, prof.PriorContexts); err != nil {
				log.Printf("[consolidate] warning: backfill contexts for %q: %v", topic, err)
			}
		}
		if len(prof.UserOpinions) > 0 {
			if err := c.history.ReplaceHistory(topic, ledger.KindOpinion, prof.UserOpinions); err != nil {
				log.Printf("[consolidate] warning: backfill opinions for %q: %v", topic, err)
			}
		}
		return prof.PriorContexts, prof.UserOpinions
	}

	priors, err := c.history.History(topic, ledger.KindContext)
	if err != nil {
		log.Printf("[consolidate] warning: ledger contexts for %q: %v", topic, err)
		priors = prof.PriorContexts
	}
	opinions, err := c.history.History(topic, ledger.KindOpinion)
	if err != nil {
		log.Printf("[consolidate] warning: ledger opinions for %q: %v", topic, err)
		opinions = prof.UserOpinions
	}
	return priors, opinions
}

func (c *Consolidator) invoke(ctx context.Context, topic, ref, conversation string, prof *note.Profile, priors, opinions []note.HistoryEntry) (*consolidationResponse, error) {
	serialized, err := prof.Render()
	if err != nil {
		return nil, fmt.Errorf("serialize profile: %w", err)
	}
	prompt := fmt.Sprintf(consolidationPrompt,
		c.who.Name, topic, ref,
		c.who.PromptContext(),
		conversation,
		serialized,
		listBlock(priors),
		listBlock(opinions),
	)

	raw, err := c.model.Invoke(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	var resp consolidationResponse
	if err := llm.DecodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse consolidation response: %w", err)
	}
	return &resp, nil
}

func listBlock(entries []note.HistoryEntry) string {
	if len(entries) == 0 {
		return "(none)"
	}
	return strings.TrimSpace(note.RenderHistoryList(entries))
}

func toEntries(in []historyEntry) []note.HistoryEntry {
	out := make([]note.HistoryEntry, 0, len(in))
	for _, e := range in {
		out = append(out, note.HistoryEntry{Ref: e.Ref, Text: e.Text})
	}
	return out
}
