package retrieval

import (
	"sort"

	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/tagstore"
)

// Final-score weights: how much the utterance says about a topic versus
// how much the topic has historically mattered.
const (
	promptWeight     = 0.7
	importanceWeight = 0.3
)

// RankedTopic is a known topic ordered for tier-1 fetching. Topic is
// the score store's canonical name, not the candidate's spelling.
type RankedTopic struct {
	Topic string
	Score float64
}

// Rank splits candidates into known topics, ordered by combined score,
// and fresh ones with no score record, kept aside for topic discovery.
// Candidates match records case-insensitively through the sanitized
// topic name, so a model answering "career-stress" still hits a record
// keyed "Career Stress". The sort is stable: ties keep candidate order.
func Rank(candidates []Candidate, scores map[string]tagstore.Score) ([]RankedTopic, []Candidate) {
	keys := make([]string, 0, len(scores))
	for key := range scores {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lookup := make(map[string]string, len(keys))
	for _, key := range keys {
		sanitized := note.SanitizeTopic(key)
		if _, ok := lookup[sanitized]; !ok {
			lookup[sanitized] = key
		}
	}

	ranked := make([]RankedTopic, 0, len(candidates))
	var fresh []Candidate
	for _, c := range candidates {
		topic, ok := lookup[note.SanitizeTopic(c.Keyword)]
		if !ok {
			fresh = append(fresh, c)
			continue
		}
		rec := scores[topic]
		ranked = append(ranked, RankedTopic{
			Topic: topic,
			Score: promptWeight*c.InPromptScore + importanceWeight*float64(rec.BaseImportance),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, fresh
}
