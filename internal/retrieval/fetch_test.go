package retrieval

import (
	"strings"
	"testing"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/vault"
)

func seedProfile(t *testing.T, store vault.Store, p *note.Profile) {
	t.Helper()
	content, err := p.Render()
	if err != nil {
		t.Fatalf("render profile: %v", err)
	}
	path := "profiles/" + note.SanitizeTopic(p.Topic) + ".md"
	if err := store.Create(path, content); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func seedSummary(t *testing.T, store vault.Store, ref string, s *note.Summary) {
	t.Helper()
	content, err := s.Render()
	if err != nil {
		t.Fatalf("render summary: %v", err)
	}
	if err := store.Create("summaries/"+ref+".md", content); err != nil {
		t.Fatalf("seed summary %s: %v", ref, err)
	}
}

func TestProfiles_RendersSnippet(t *testing.T) {
	store := vault.NewMem()
	prof := note.NewProfile("gardening")
	prof.Aliases = []string{"garden", "yardwork"}
	prof.KeyThemes = []string{"tomatoes", "soil care"}
	prof.Sentiment = "positive"
	prof.SentimentNotes = []string{"finds it calming"}
	prof.Significance = "A steady source of joy since spring."
	prof.PriorContexts = []note.HistoryEntry{{Ref: "conv-1", Text: "planted the first beds"}}
	prof.UserOpinions = []note.HistoryEntry{{Ref: "conv-1", Text: "prefers heirloom seeds"}}
	seedProfile(t, store, prof)

	f := NewFetcher(config.DefaultConfig(), store)
	items := f.Profiles([]RankedTopic{{Topic: "gardening", Score: 71}})
	if len(items) != 1 {
		t.Fatalf("items = %v, want 1", items)
	}
	it := items[0]
	if it.Tier != TierProfile || it.Source != "gardening" || it.Score != 71 {
		t.Errorf("item = %+v", it)
	}
	for _, want := range []string{
		"Key themes: tomatoes, soil care",
		"Sentiment: positive (finds it calming)",
		"Also known as: garden, yardwork",
		"A steady source of joy",
		"[[conv-1]]: planted the first beds",
		"[[conv-1]]: prefers heirloom seeds",
	} {
		if !strings.Contains(it.Snippet, want) {
			t.Errorf("snippet missing %q:\n%s", want, it.Snippet)
		}
	}
}

func TestProfiles_TopKAndMissing(t *testing.T) {
	store := vault.NewMem()
	seedProfile(t, store, note.NewProfile("first"))
	seedProfile(t, store, note.NewProfile("third"))

	cfg := config.DefaultConfig()
	cfg.Retrieval.ProfileFetchK = 2
	f := NewFetcher(cfg, store)

	ranked := []RankedTopic{
		{Topic: "first", Score: 90},
		{Topic: "second", Score: 80}, // no profile note, skipped
		{Topic: "third", Score: 70},  // beyond K, never read
	}
	items := f.Profiles(ranked)
	if len(items) != 1 || items[0].Source != "first" {
		t.Fatalf("items = %v, want only first", items)
	}
}

func TestProfiles_SanitizedFileName(t *testing.T) {
	store := vault.NewMem()
	prof := note.NewProfile("Career Stress")
	prof.Significance = "Quarterly reviews weigh on them."
	seedProfile(t, store, prof)

	f := NewFetcher(config.DefaultConfig(), store)
	items := f.Profiles([]RankedTopic{{Topic: "Career Stress", Score: 50}})
	if len(items) != 1 {
		t.Fatalf("items = %v, want profile read from career-stress.md", items)
	}
}

func TestProfiles_SnippetCap(t *testing.T) {
	store := vault.NewMem()
	prof := note.NewProfile("long")
	prof.Significance = strings.Repeat("very long narrative ", 100)
	seedProfile(t, store, prof)

	cfg := config.DefaultConfig()
	cfg.Retrieval.ProfileFetchK = 2
	cfg.Retrieval.ContextBudget = 600
	f := NewFetcher(cfg, store)

	items := f.Profiles([]RankedTopic{{Topic: "long", Score: 10}})
	if len(items) != 1 {
		t.Fatalf("items = %v, want 1", items)
	}
	perProfile := 600/2 - config.DefaultSnippetOverhead
	if got := len([]rune(items[0].Snippet)); got > perProfile+len(truncationMarker) {
		t.Errorf("snippet length = %d, want <= %d", got, perProfile+len(truncationMarker))
	}
	if !strings.HasSuffix(items[0].Snippet, truncationMarker) {
		t.Errorf("snippet should end with the truncation marker")
	}
}

func TestSummaries_NormalizesAndDedups(t *testing.T) {
	store := vault.NewMem()
	seedSummary(t, store, "conv-1", &note.Summary{Title: "Garden plans", Body: "We planned the beds."})

	f := NewFetcher(config.DefaultConfig(), store)
	items := f.Summaries([]string{"[[conv-1]]", "conv-1.md", "missing"})
	if len(items) != 1 {
		t.Fatalf("items = %v, want deduped single", items)
	}
	if items[0].Source != "conv-1" || items[0].Title != "Garden plans" {
		t.Errorf("item = %+v", items[0])
	}
}

func TestSummaries_SnippetPrefersSummarySectionAndTakeaways(t *testing.T) {
	store := vault.NewMem()
	seedSummary(t, store, "conv-2", &note.Summary{
		Title:        "Trip talk",
		KeyTakeaways: []string{"book flights early", "pack light"},
		Body:         "## Notes\n\nLong preamble.\n\n## Summary\n\nDiscussed the autumn trip.",
	})

	f := NewFetcher(config.DefaultConfig(), store)
	items := f.Summaries([]string{"conv-2"})
	snippet := items[0].Snippet
	if !strings.Contains(snippet, "Discussed the autumn trip.") {
		t.Errorf("snippet missing summary section:\n%s", snippet)
	}
	if strings.Contains(snippet, "Long preamble") {
		t.Errorf("snippet should prefer the summary section:\n%s", snippet)
	}
	for _, want := range []string{"Key takeaways:", "- book flights early", "- pack light"} {
		if !strings.Contains(snippet, want) {
			t.Errorf("snippet missing %q", want)
		}
	}
}

func TestSummaries_SnippetCap(t *testing.T) {
	store := vault.NewMem()
	seedSummary(t, store, "conv-3", &note.Summary{
		Title: "Marathon",
		Body:  strings.Repeat("training details ", 200),
	})

	f := NewFetcher(config.DefaultConfig(), store)
	items := f.Summaries([]string{"conv-3"})
	max := config.DefaultSummaryExcerptCap + len(truncationMarker)
	if got := len([]rune(items[0].Snippet)); got > max {
		t.Errorf("snippet length = %d, want <= %d", got, max)
	}
}

func TestTranscript_ResolvesLink(t *testing.T) {
	store := vault.NewMem()
	seedSummary(t, store, "conv-4", &note.Summary{Title: "Catch up", Transcript: "[[log-4]]"})
	if err := store.Create("transcripts/log-4.md", "User: hi\nNomi: hello again"); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	f := NewFetcher(config.DefaultConfig(), store)
	item, ok := f.Transcript("conv-4")
	if !ok {
		t.Fatal("Transcript returned no item")
	}
	if item.Tier != TierFullTranscript || item.Source != "log-4" {
		t.Errorf("item = %+v", item)
	}
	if !strings.Contains(item.Snippet, "hello again") {
		t.Errorf("snippet = %q", item.Snippet)
	}
}

func TestTranscript_StripsFrontmatter(t *testing.T) {
	store := vault.NewMem()
	seedSummary(t, store, "conv-5", &note.Summary{Transcript: "log-5"})
	content := "---\nsession: morning\n---\nUser: good morning"
	if err := store.Create("transcripts/log-5.md", content); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	f := NewFetcher(config.DefaultConfig(), store)
	item, ok := f.Transcript("conv-5")
	if !ok {
		t.Fatal("Transcript returned no item")
	}
	if strings.Contains(item.Snippet, "session:") {
		t.Errorf("snippet kept frontmatter: %q", item.Snippet)
	}
	if !strings.Contains(item.Snippet, "good morning") {
		t.Errorf("snippet = %q", item.Snippet)
	}
}

func TestTranscript_ExcerptCap(t *testing.T) {
	store := vault.NewMem()
	seedSummary(t, store, "conv-6", &note.Summary{Transcript: "log-6"})
	if err := store.Create("transcripts/log-6.md", strings.Repeat("turn after turn ", 200)); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	f := NewFetcher(config.DefaultConfig(), store)
	item, _ := f.Transcript("conv-6")
	max := config.DefaultTranscriptExcerptCap + len(truncationMarker)
	if got := len([]rune(item.Snippet)); got > max {
		t.Errorf("snippet length = %d, want <= %d", got, max)
	}
}

func TestTranscript_MissingPieces(t *testing.T) {
	store := vault.NewMem()
	seedSummary(t, store, "no-link", &note.Summary{Title: "No link"})
	seedSummary(t, store, "dead-link", &note.Summary{Transcript: "gone"})

	f := NewFetcher(config.DefaultConfig(), store)
	if _, ok := f.Transcript("no-link"); ok {
		t.Error("summary without transcript link should yield no item")
	}
	if _, ok := f.Transcript("dead-link"); ok {
		t.Error("missing transcript note should yield no item")
	}
	if _, ok := f.Transcript("absent-summary"); ok {
		t.Error("missing summary should yield no item")
	}
	if _, ok := f.Transcript(""); ok {
		t.Error("empty ref should yield no item")
	}
}
