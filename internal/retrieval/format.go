package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fernwehlabs/mnema/internal/config"
)

// NoMemoryFound is the context rendered when retrieval produced no
// items. Callers treat it as an ordinary context string.
const NoMemoryFound = "no relevant memory found"

const elisionMarker = "[additional memory elided]"

// EvalContext renders items for the sufficiency judge, with tighter
// per-item caps than the final rendering.
func EvalContext(items []Item, budget int) string {
	return render(items, config.DefaultEvalItemCap, budget, false)
}

// FinalContext renders items for answer generation, marking elision
// when the total budget cuts the tail.
func FinalContext(items []Item, budget int) string {
	return render(items, config.DefaultFinalItemCap, budget, true)
}

func render(items []Item, itemCap, budget int, markElision bool) string {
	if len(items) == 0 {
		return NoMemoryFound
	}

	ordered := make([]Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	blocks := make([]string, 0, len(ordered))
	for _, it := range ordered {
		blocks = append(blocks, itemHeader(it)+"\n"+truncate(it.Snippet, itemCap))
	}
	out := strings.Join(blocks, "\n\n")

	runes := []rune(out)
	if budget > 0 && len(runes) > budget {
		out = strings.TrimSpace(string(runes[:budget]))
		if markElision {
			out += "\n" + elisionMarker
		}
	}
	return out
}

func itemHeader(it Item) string {
	switch it.Tier {
	case TierProfile:
		return "[Topic profile: " + it.Source + "]"
	case TierSummary:
		h := "[Conversation summary: " + it.Source
		if it.Title != "" {
			h += " - " + it.Title
		}
		if !it.Date.IsZero() {
			h += " (" + it.Date.Format("2006-01-02") + ")"
		}
		return h + "]"
	case TierFullTranscript:
		return "[Full conversation log: " + it.Source + "]"
	default:
		return fmt.Sprintf("[%s: %s]", it.Tier, it.Source)
	}
}
