package task

import (
	"sort"
	"time"

	"github.com/reverba/api/internal/model"
)

// Tier binds a priority level to the task type it produces and how many
// words a daily batch takes from it.
type Tier struct {
	Priority int
	Type     model.TaskType
	Quota    int
}

// Tiers lists every tier in batch order. The quotas add up to the maximum
// batch size of 8.
var Tiers = [model.MaxPriority]Tier{
	{Priority: 1, Type: model.TaskTypeMeaning, Quota: 1},
	{Priority: 2, Type: model.TaskTypeSentence, Quota: 2},
	{Priority: 3, Type: model.TaskTypeMCQ, Quota: 3},
	{Priority: 4, Type: model.TaskTypeParagraph, Quota: 2},
}

// MaxBatchSize is the largest number of tasks a batch can hold.
func MaxBatchSize() int {
	n := 0
	for _, t := range Tiers {
		n += t.Quota
	}
	return n
}

// TierFor returns the tier of a priority level.
func TierFor(priority int) (Tier, bool) {
	if !model.ValidPriority(priority) {
		return Tier{}, false
	}
	return Tiers[priority-1], true
}

// TierSelection is the words picked from one tier.
type TierSelection struct {
	Tier  Tier
	Words []model.Word
}

// Selection is the outcome of choosing today's words.
type Selection struct {
	Tiers      [model.MaxPriority]TierSelection
	Unselected []model.Word
}

// SelectedIDs returns the ids of every selected word in tier order.
func (s Selection) SelectedIDs() []string {
	var ids []string
	for _, t := range s.Tiers {
		for _, w := range t.Words {
			ids = append(ids, w.ID)
		}
	}
	return ids
}

// UnselectedIDs returns the ids handed to the rebalancer.
func (s Selection) UnselectedIDs() []string {
	ids := make([]string, 0, len(s.Unselected))
	for _, w := range s.Unselected {
		ids = append(ids, w.ID)
	}
	return ids
}

// Size is the number of selected words.
func (s Selection) Size() int {
	n := 0
	for _, t := range s.Tiers {
		n += len(t.Words)
	}
	return n
}

// Select partitions the user's ACTIVE words by priority and takes up to each
// tier's quota from its own bucket. Tiers never borrow from each other, so a
// short bucket yields a short tier. Within a bucket the least recently
// reviewed words go first (never-reviewed before reviewed), then the oldest,
// then by id, which makes the choice reproducible for the same data.
func Select(words []model.Word) Selection {
	var sel Selection
	var buckets [model.MaxPriority][]model.Word

	for _, w := range words {
		if w.State != model.WordStateActive {
			continue
		}
		// Out-of-range priorities are neither practised nor rebalanced.
		if !model.ValidPriority(w.Priority) {
			continue
		}
		buckets[w.Priority-1] = append(buckets[w.Priority-1], w)
	}

	for i, tier := range Tiers {
		bucket := buckets[i]
		sortForSelection(bucket)

		n := tier.Quota
		if len(bucket) < n {
			n = len(bucket)
		}
		sel.Tiers[i] = TierSelection{Tier: tier, Words: bucket[:n:n]}
		sel.Unselected = append(sel.Unselected, bucket[n:]...)
	}

	return sel
}

func sortForSelection(words []model.Word) {
	sort.SliceStable(words, func(i, j int) bool {
		a, b := words[i], words[j]
		if c := compareReviewed(a.LastReviewedAt, b.LastReviewedAt); c != 0 {
			return c < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func compareReviewed(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}
