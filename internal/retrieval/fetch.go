package retrieval

import (
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/vault"
)

const truncationMarker = " [truncated]"

// Fetcher reads the three memory tiers from the vault. All fetches are
// side-effect-free; a missing or unreadable note is logged and skipped,
// never an error.
type Fetcher struct {
	store vault.Store

	profilesFolder    string
	summariesFolder   string
	transcriptsFolder string

	fetchK            int
	budget            int
	summaryExcerpt    int
	transcriptExcerpt int
	overhead          int
}

func NewFetcher(cfg *config.Config, store vault.Store) *Fetcher {
	return &Fetcher{
		store:             store,
		profilesFolder:    cfg.Vault.ProfilesFolder,
		summariesFolder:   cfg.Vault.SummariesFolder,
		transcriptsFolder: cfg.Vault.TranscriptsFolder,
		fetchK:            cfg.Retrieval.ProfileFetchK,
		budget:            cfg.Retrieval.ContextBudget,
		summaryExcerpt:    config.DefaultSummaryExcerptCap,
		transcriptExcerpt: config.DefaultTranscriptExcerptCap,
		overhead:          config.DefaultSnippetOverhead,
	}
}

// Profiles loads tier-1 snippets for the top-K ranked topics. Each
// snippet shares the context budget evenly, minus a per-item overhead
// allowance for headers.
func (f *Fetcher) Profiles(ranked []RankedTopic) []Item {
	if len(ranked) > f.fetchK {
		ranked = ranked[:f.fetchK]
	}
	perProfile := 0
	if f.fetchK > 0 {
		perProfile = f.budget/f.fetchK - f.overhead
	}

	var items []Item
	for _, rt := range ranked {
		name := note.SanitizeTopic(rt.Topic)
		if name == "" {
			continue
		}
		content, err := f.store.Read(path.Join(f.profilesFolder, name+".md"))
		if err != nil {
			log.Printf("[retrieval] skip profile %q: %v", rt.Topic, err)
			continue
		}
		prof := note.ParseProfile(content)
		items = append(items, Item{
			Tier:    TierProfile,
			Source:  rt.Topic,
			Title:   prof.Topic,
			Snippet: truncate(profileSnippet(prof), perProfile),
			Score:   rt.Score,
		})
	}
	return items
}

// Summaries loads tier-2 items for the given summary refs. Refs are
// normalized and deduplicated first.
func (f *Fetcher) Summaries(refs []string) []Item {
	var items []Item
	for _, ref := range note.NormalizeRefs(refs) {
		content, err := f.store.Read(path.Join(f.summariesFolder, ref+".md"))
		if err != nil {
			log.Printf("[retrieval] warning: skip summary %q: %v", ref, err)
			continue
		}
		sum := note.ParseSummary(content)
		items = append(items, Item{
			Tier:    TierSummary,
			Source:  ref,
			Title:   sum.Title,
			Date:    sum.Date,
			Snippet: f.summarySnippet(sum),
		})
	}
	return items
}

// Transcript resolves one summary ref to its full conversation log and
// returns a bounded excerpt. A summary without a transcript link yields
// no item, which is not an error.
func (f *Fetcher) Transcript(summaryRef string) (Item, bool) {
	ref := note.NormalizeRef(summaryRef)
	if ref == "" {
		return Item{}, false
	}
	content, err := f.store.Read(path.Join(f.summariesFolder, ref+".md"))
	if err != nil {
		log.Printf("[retrieval] warning: skip summary %q: %v", ref, err)
		return Item{}, false
	}
	sum := note.ParseSummary(content)
	tref := note.NormalizeRef(sum.Transcript)
	if tref == "" {
		return Item{}, false
	}
	raw, err := f.store.Read(path.Join(f.transcriptsFolder, tref+".md"))
	if err != nil {
		log.Printf("[retrieval] warning: skip transcript %q: %v", tref, err)
		return Item{}, false
	}
	body := raw
	if stripped, err := note.DecodeFrontmatter(raw, &struct{}{}); err == nil {
		body = stripped
	}
	return Item{
		Tier:    TierFullTranscript,
		Source:  tref,
		Title:   sum.Title,
		Date:    sum.Date,
		Snippet: truncate(strings.TrimSpace(body), f.transcriptExcerpt),
	}, true
}

func profileSnippet(p *note.Profile) string {
	var b strings.Builder
	if len(p.KeyThemes) > 0 {
		fmt.Fprintf(&b, "Key themes: %s\n", strings.Join(p.KeyThemes, ", "))
	}
	if p.Sentiment != "" {
		b.WriteString("Sentiment: " + p.Sentiment)
		if len(p.SentimentNotes) > 0 {
			b.WriteString(" (" + strings.Join(p.SentimentNotes, "; ") + ")")
		}
		b.WriteString("\n")
	}
	if len(p.Aliases) > 0 {
		fmt.Fprintf(&b, "Also known as: %s\n", strings.Join(p.Aliases, ", "))
	}
	writeSection(&b, "Overview", p.Significance)
	writeSection(&b, "Prior contexts", note.RenderHistoryList(p.PriorContexts))
	writeSection(&b, "User opinions", note.RenderHistoryList(p.UserOpinions))
	writeSection(&b, "Other notes", p.OtherNotes)
	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "\n%s:\n%s\n", heading, body)
}

func (f *Fetcher) summarySnippet(s *note.Summary) string {
	var b strings.Builder
	b.WriteString(s.Excerpt(f.summaryExcerpt))
	if len(s.KeyTakeaways) > 0 {
		b.WriteString("\nKey takeaways:")
		for _, kt := range s.KeyTakeaways {
			b.WriteString("\n- " + kt)
		}
	}
	return truncate(strings.TrimSpace(b.String()), f.summaryExcerpt)
}

// truncate cuts s to at most max runes plus the truncation marker. A
// non-positive max leaves s unchanged.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + truncationMarker
}
