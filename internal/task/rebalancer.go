package task

import "github.com/reverba/api/internal/model"

// RebalancedPriority is the priority an unselected word moves to: one step
// up, clamped at model.MaxPriority. Priorities below model.MinPriority are
// left alone, matching Store.RebalanceWords.
func RebalancedPriority(p int) int {
	if p >= model.MaxPriority {
		return model.MaxPriority
	}
	if p < model.MinPriority {
		return p
	}
	return p + 1
}

// Rebalance returns copies of the unselected words with their priorities
// bumped. Selected words are never touched here; their priority only moves
// when their task is completed.
func Rebalance(sel Selection) []model.Word {
	out := make([]model.Word, 0, len(sel.Unselected))
	for _, w := range sel.Unselected {
		w.Priority = RebalancedPriority(w.Priority)
		out = append(out, w)
	}
	return out
}
