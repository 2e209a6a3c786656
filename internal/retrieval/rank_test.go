package retrieval

import (
	"math"
	"reflect"
	"testing"

	"github.com/fernwehlabs/mnema/internal/tagstore"
)

func TestRank_Formula(t *testing.T) {
	scores := map[string]tagstore.Score{
		"gardening": {BaseImportance: 50},
	}
	ranked, _ := Rank([]Candidate{{Keyword: "gardening", InPromptScore: 80}}, scores)
	if len(ranked) != 1 {
		t.Fatalf("ranked = %v, want 1 entry", ranked)
	}
	want := 0.7*80 + 0.3*50
	if math.Abs(ranked[0].Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", ranked[0].Score, want)
	}
}

func TestRank_SortsDescendingStable(t *testing.T) {
	scores := map[string]tagstore.Score{
		"a": {BaseImportance: 10},
		"b": {BaseImportance: 90},
		"c": {BaseImportance: 10},
	}
	candidates := []Candidate{
		{Keyword: "a", InPromptScore: 50},
		{Keyword: "b", InPromptScore: 50},
		{Keyword: "c", InPromptScore: 50}, // same score as a, must stay after it
	}
	ranked, _ := Rank(candidates, scores)
	var order []string
	for _, rt := range ranked {
		order = append(order, rt.Topic)
	}
	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRank_UnmatchedKeptForDiscovery(t *testing.T) {
	scores := map[string]tagstore.Score{"known": {BaseImportance: 40}}
	candidates := []Candidate{
		{Keyword: "known", InPromptScore: 60},
		{Keyword: "brand-new", InPromptScore: 95},
	}
	ranked, fresh := Rank(candidates, scores)
	if len(ranked) != 1 || ranked[0].Topic != "known" {
		t.Errorf("ranked = %v, want only known", ranked)
	}
	if len(fresh) != 1 || fresh[0].Keyword != "brand-new" {
		t.Errorf("fresh = %v, want brand-new", fresh)
	}
}

func TestRank_MatchesThroughSanitizedName(t *testing.T) {
	scores := map[string]tagstore.Score{"Career Stress": {BaseImportance: 30}}
	ranked, fresh := Rank([]Candidate{{Keyword: "career-stress", InPromptScore: 70}}, scores)
	if len(fresh) != 0 {
		t.Fatalf("fresh = %v, want none", fresh)
	}
	if len(ranked) != 1 || ranked[0].Topic != "Career Stress" {
		t.Fatalf("ranked = %v, want canonical Career Stress", ranked)
	}
}

func TestRank_Deterministic(t *testing.T) {
	scores := map[string]tagstore.Score{
		"a": {BaseImportance: 10},
		"b": {BaseImportance: 20},
		"c": {BaseImportance: 30},
		"d": {BaseImportance: 40},
	}
	candidates := []Candidate{
		{Keyword: "d", InPromptScore: 10},
		{Keyword: "c", InPromptScore: 20},
		{Keyword: "b", InPromptScore: 30},
		{Keyword: "a", InPromptScore: 40},
	}
	first, _ := Rank(candidates, scores)
	for i := 0; i < 10; i++ {
		again, _ := Rank(candidates, scores)
		if !reflect.DeepEqual(again, first) {
			t.Fatalf("run %d order = %v, want %v", i, again, first)
		}
	}
}

func TestRank_EmptyInputs(t *testing.T) {
	ranked, fresh := Rank(nil, nil)
	if len(ranked) != 0 || len(fresh) != 0 {
		t.Errorf("ranked = %v fresh = %v, want empty", ranked, fresh)
	}
}
