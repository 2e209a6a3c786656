package note

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func sampleProfile() *Profile {
	return &Profile{
		Topic:            "hiking",
		Aliases:          []string{"trekking", "trail walking"},
		KeyThemes:        []string{"weekend trips", "gear"},
		Sentiment:        "positive",
		SentimentNotes:   []string{"energized after trips"},
		RelatedTopics:    []string{"photography"},
		Created:          time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Updated:          time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
		LastMentionedIn:  "2026-08-20-hike",
		MentionFrequency: 3,
		Significance:     "Hiking is the user's main way to decompress.",
		PriorContexts: []HistoryEntry{
			{Ref: "2026-08-20-hike", Text: "Planned a three-day trip to the Dolomites."},
			{Ref: "2026-07-02-gear", Text: "Bought new boots after blisters."},
		},
		UserOpinions: []HistoryEntry{
			{Ref: "2026-08-20-hike", Text: "Prefers quiet trails over popular routes."},
		},
		OtherNotes: "Knee trouble on steep descents.",
	}
}

func TestProfile_RenderParseRoundTrip(t *testing.T) {
	p := sampleProfile()
	rendered, err := p.Render()
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	got := ParseProfile(rendered)
	if got.Topic != p.Topic {
		t.Errorf("topic = %q, want %q", got.Topic, p.Topic)
	}
	if !reflect.DeepEqual(got.Aliases, p.Aliases) {
		t.Errorf("aliases = %v, want %v", got.Aliases, p.Aliases)
	}
	if !reflect.DeepEqual(got.KeyThemes, p.KeyThemes) {
		t.Errorf("keyThemes = %v, want %v", got.KeyThemes, p.KeyThemes)
	}
	if got.Sentiment != p.Sentiment {
		t.Errorf("sentiment = %q, want %q", got.Sentiment, p.Sentiment)
	}
	if !reflect.DeepEqual(got.SentimentNotes, p.SentimentNotes) {
		t.Errorf("sentimentNotes = %v, want %v", got.SentimentNotes, p.SentimentNotes)
	}
	if !reflect.DeepEqual(got.RelatedTopics, p.RelatedTopics) {
		t.Errorf("relatedTopics = %v, want %v", got.RelatedTopics, p.RelatedTopics)
	}
	if !got.Created.Equal(p.Created) || !got.Updated.Equal(p.Updated) {
		t.Errorf("timestamps = %v/%v, want %v/%v", got.Created, got.Updated, p.Created, p.Updated)
	}
	if got.LastMentionedIn != p.LastMentionedIn {
		t.Errorf("lastMentionedIn = %q, want %q", got.LastMentionedIn, p.LastMentionedIn)
	}
	if got.MentionFrequency != p.MentionFrequency {
		t.Errorf("mentionFrequency = %d, want %d", got.MentionFrequency, p.MentionFrequency)
	}
	if got.Significance != p.Significance {
		t.Errorf("significance = %q, want %q", got.Significance, p.Significance)
	}
	if !reflect.DeepEqual(got.PriorContexts, p.PriorContexts) {
		t.Errorf("priorContexts = %v, want %v", got.PriorContexts, p.PriorContexts)
	}
	if !reflect.DeepEqual(got.UserOpinions, p.UserOpinions) {
		t.Errorf("userOpinions = %v, want %v", got.UserOpinions, p.UserOpinions)
	}
	if got.OtherNotes != p.OtherNotes {
		t.Errorf("otherNotes = %q, want %q", got.OtherNotes, p.OtherNotes)
	}
}

func TestHistoryList_RoundTrip(t *testing.T) {
	entries := []HistoryEntry{
		{Ref: "2026-08-20-hike", Text: "Planned a trip."},
		{Ref: "2026-07-02-gear", Text: "Bought boots: waterproof, size 44."},
	}
	if got := ParseHistoryList(RenderHistoryList(entries)); !reflect.DeepEqual(got, entries) {
		t.Fatalf("round trip = %v, want %v", got, entries)
	}
}

func TestRenderHistoryList_FlattensNewlines(t *testing.T) {
	entries := []HistoryEntry{{Ref: "r1", Text: "line one\nline two"}}
	rendered := RenderHistoryList(entries)
	if strings.Count(rendered, "\n") != 1 {
		t.Fatalf("entry should render as a single line, got %q", rendered)
	}
	got := ParseHistoryList(rendered)
	if len(got) != 1 || got[0].Text != "line one line two" {
		t.Fatalf("parsed = %v", got)
	}
}

func TestParseHistoryList_SkipsMalformedLines(t *testing.T) {
	text := `- [[good]]: fine entry
just prose, not an entry
- missing ref: text
* [[star-form]]: also fine
- [[]]: empty ref dropped
`
	got := ParseHistoryList(text)
	want := []HistoryEntry{
		{Ref: "good", Text: "fine entry"},
		{Ref: "star-form", Text: "also fine"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parsed = %v, want %v", got, want)
	}
}

func TestParseProfile_NoFrontmatter(t *testing.T) {
	content := `## Overview

Just a body.

## Prior Contexts

- [[ref-a]]: something happened

## User Opinions

## Other Notes
`
	p := ParseProfile(content)
	if p.Topic != "" {
		t.Errorf("topic = %q, want empty", p.Topic)
	}
	if p.Significance != "Just a body." {
		t.Errorf("significance = %q", p.Significance)
	}
	if len(p.PriorContexts) != 1 || p.PriorContexts[0].Ref != "ref-a" {
		t.Errorf("priorContexts = %v", p.PriorContexts)
	}
	if len(p.UserOpinions) != 0 {
		t.Errorf("userOpinions = %v, want empty", p.UserOpinions)
	}
}

func TestParseProfile_GarbageDegradesToEmpty(t *testing.T) {
	p := ParseProfile("complete nonsense, no headings at all")
	if p.Significance != "" || len(p.PriorContexts) != 0 || len(p.UserOpinions) != 0 || p.OtherNotes != "" {
		t.Fatalf("expected empty profile fields, got %+v", p)
	}
}

func TestParseProfile_BadYAMLKeepsBody(t *testing.T) {
	content := "---\n: : not yaml [\n---\n## Overview\n\nStill here.\n"
	p := ParseProfile(content)
	if p.Significance != "Still here." {
		t.Errorf("significance = %q, want body to survive", p.Significance)
	}
}

func TestMergeHistory_DedupNewestWins(t *testing.T) {
	existing := []HistoryEntry{
		{Ref: "older", Text: "old entry"},
		{Ref: "shared", Text: "stale text"},
	}
	incoming := []HistoryEntry{
		{Ref: "newest", Text: "fresh"},
		{Ref: "shared", Text: "updated text"},
	}
	got := MergeHistory(existing, incoming)
	want := []HistoryEntry{
		{Ref: "newest", Text: "fresh"},
		{Ref: "shared", Text: "updated text"},
		{Ref: "older", Text: "old entry"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merged = %v, want %v", got, want)
	}
}

func TestMergeHistory_Idempotent(t *testing.T) {
	incoming := []HistoryEntry{{Ref: "r1", Text: "same conversation"}}
	once := MergeHistory(nil, incoming)
	twice := MergeHistory(once, incoming)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("repeat merge changed the list: %v vs %v", once, twice)
	}
	if len(twice) != 1 {
		t.Fatalf("expected a single entry, got %v", twice)
	}
}

func TestMergeHistory_NormalizesIncomingRefs(t *testing.T) {
	got := MergeHistory(nil, []HistoryEntry{{Ref: "[[wrapped.md]]", Text: "x"}})
	if len(got) != 1 || got[0].Ref != "wrapped" {
		t.Fatalf("merged = %v", got)
	}
}
