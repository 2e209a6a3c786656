package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/notify"
	"github.com/fernwehlabs/mnema/internal/vault"
)

func evalFixture(t *testing.T) *countingStore {
	t.Helper()
	store := vault.NewMem()
	seedSummary(t, store, "conv-1", &note.Summary{Title: "Garden start", Transcript: "log-1", Body: "First beds."})
	seedSummary(t, store, "conv-2", &note.Summary{Title: "Garden check", Body: "Tomatoes sprouting."})
	if err := store.Create("transcripts/log-1.md", "User: let's plant\nNomi: tomatoes it is"); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}
	return newCountingStore(store)
}

func newEvalUnderTest(model *scriptedModel, store vault.Store) *Evaluator {
	cfg := config.DefaultConfig()
	return NewEvaluator(cfg, model, NewFetcher(cfg, store), notify.Nop{})
}

func profileItems() []Item {
	return []Item{{Tier: TierProfile, Source: "gardening", Snippet: "Key themes: tomatoes", Score: 70}}
}

func TestRun_EmptyItems_NoCall(t *testing.T) {
	model := &scriptedModel{}
	e := newEvalUnderTest(model, vault.NewMem())

	items, esc, raw := e.Run(context.Background(), "q", nil, nil)
	if model.calls != 0 {
		t.Errorf("calls = %d, want 0 with nothing to judge", model.calls)
	}
	if len(items) != 0 || len(esc.SummaryRefs) != 0 || raw != "" {
		t.Errorf("items = %v esc = %+v raw = %q", items, esc, raw)
	}
}

func TestRun_SufficientRound0(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"sufficient_for_response":true,"reasoning":"profile covers it"}`,
	}}
	store := evalFixture(t)
	e := newEvalUnderTest(model, store)

	items, esc, raw := e.Run(context.Background(), "q", nil, profileItems())
	if model.calls != 1 {
		t.Errorf("calls = %d, want exactly 1", model.calls)
	}
	if len(items) != 1 {
		t.Errorf("items = %v, want untouched profile item", items)
	}
	if store.readsUnder("summaries/") != 0 || store.readsUnder("transcripts/") != 0 {
		t.Errorf("reads = %v, want no tier-2/3 fetches", store.reads)
	}
	if esc.SummaryRefs != nil || esc.TranscriptRef != "" {
		t.Errorf("esc = %+v, want empty", esc)
	}
	if !strings.Contains(raw, "profile covers it") {
		t.Errorf("raw = %q", raw)
	}
}

func TestRun_TwoSummariesThenTranscript(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"sufficient_for_response":false,"next_summary_notes_to_fetch":["[[conv-1]]","conv-2"]}`,
		`{"sufficient_for_response":false,"requires_full_log_for_summary_note":"conv-1"}`,
	}}
	store := evalFixture(t)
	e := newEvalUnderTest(model, store)

	items, esc, _ := e.Run(context.Background(), "q", nil, profileItems())
	if model.calls != 2 {
		t.Errorf("calls = %d, want exactly 2", model.calls)
	}

	var summaries, transcripts int
	for _, it := range items {
		switch it.Tier {
		case TierSummary:
			summaries++
		case TierFullTranscript:
			transcripts++
		}
	}
	if summaries != 2 || transcripts != 1 {
		t.Errorf("fetched %d summaries, %d transcripts, want 2 and 1", summaries, transcripts)
	}
	if got := store.readsUnder("transcripts/"); got != 1 {
		t.Errorf("transcript reads = %d, want 1", got)
	}

	if want := []string{"conv-1", "conv-2"}; len(esc.SummaryRefs) != 2 ||
		esc.SummaryRefs[0] != want[0] || esc.SummaryRefs[1] != want[1] {
		t.Errorf("SummaryRefs = %v, want %v", esc.SummaryRefs, want)
	}
	if esc.TranscriptRef != "conv-1" {
		t.Errorf("TranscriptRef = %q, want conv-1", esc.TranscriptRef)
	}
}

func TestRun_AlwaysInsufficient_Terminates(t *testing.T) {
	insufficient := `{"sufficient_for_response":false,"next_summary_notes_to_fetch":["conv-1","conv-2"],"requires_full_log_for_summary_note":"conv-1"}`
	model := &scriptedModel{responses: []string{insufficient, insufficient, insufficient, insufficient}}
	store := evalFixture(t)
	e := newEvalUnderTest(model, store)

	items, _, _ := e.Run(context.Background(), "q", nil, profileItems())
	if model.calls > maxEvalRounds {
		t.Errorf("calls = %d, want at most %d", model.calls, maxEvalRounds)
	}
	if len(items) == 1 {
		t.Errorf("items = %v, want tier-2/3 additions before termination", items)
	}
}

func TestRun_NothingRequested_EarlyStop(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"sufficient_for_response":false,"reasoning":"cannot decide"}`,
	}}
	e := newEvalUnderTest(model, evalFixture(t))

	items, _, _ := e.Run(context.Background(), "q", nil, profileItems())
	if model.calls != 1 {
		t.Errorf("calls = %d, want 1 then early stop", model.calls)
	}
	if len(items) != 1 {
		t.Errorf("items = %v, want unchanged", items)
	}
}

func TestRun_AllRequestedSummariesMissing_EarlyStop(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"sufficient_for_response":false,"next_summary_notes_to_fetch":["ghost-1","ghost-2"]}`,
	}}
	e := newEvalUnderTest(model, evalFixture(t))

	items, esc, _ := e.Run(context.Background(), "q", nil, profileItems())
	if model.calls != 1 {
		t.Errorf("calls = %d, want 1 when fetches add nothing", model.calls)
	}
	if len(items) != 1 {
		t.Errorf("items = %v, want unchanged", items)
	}
	if len(esc.SummaryRefs) != 2 {
		t.Errorf("SummaryRefs = %v, want the requested refs recorded", esc.SummaryRefs)
	}
}

func TestRun_ModelFailureKeepsItems(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("timeout")}}
	e := newEvalUnderTest(model, evalFixture(t))

	items, _, raw := e.Run(context.Background(), "q", nil, profileItems())
	if len(items) != 1 {
		t.Errorf("items = %v, want accumulated items kept", items)
	}
	if raw != "" {
		t.Errorf("raw = %q, want empty after failed call", raw)
	}
}

func TestRun_ParseFailureKeepsItems(t *testing.T) {
	model := &scriptedModel{responses: []string{"I think you need more context"}}
	e := newEvalUnderTest(model, evalFixture(t))

	items, _, raw := e.Run(context.Background(), "q", nil, profileItems())
	if model.calls != 1 {
		t.Errorf("calls = %d, want 1", model.calls)
	}
	if len(items) != 1 {
		t.Errorf("items = %v, want accumulated items kept", items)
	}
	if raw == "" {
		t.Errorf("raw response should be kept for inspection")
	}
}

func TestRun_ParseFailureRound1_KeepsSummaries(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"sufficient_for_response":false,"next_summary_notes_to_fetch":["conv-2"]}`,
		"not json at all",
	}}
	e := newEvalUnderTest(model, evalFixture(t))

	items, _, _ := e.Run(context.Background(), "q", nil, profileItems())
	if model.calls != 2 {
		t.Errorf("calls = %d, want 2", model.calls)
	}
	if len(items) != 2 {
		t.Errorf("items = %v, want profile plus fetched summary", items)
	}
}

func TestPrompt_LimitsHistoryTurns(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"sufficient_for_response":true}`}}
	e := newEvalUnderTest(model, evalFixture(t))

	history := []string{"turn-1", "turn-2", "turn-3", "turn-4", "turn-5", "turn-6"}
	e.Run(context.Background(), "the question", history, profileItems())

	prompt := model.prompts[0]
	if strings.Contains(prompt, "turn-2") {
		t.Errorf("prompt should drop turns beyond the last %d", config.DefaultHistoryTurns)
	}
	for _, want := range []string{"turn-3", "turn-6", "the question"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
