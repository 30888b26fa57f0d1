package prediff

import (
	"sort"

	"github.com/patchkit/archivepatch/deflateparam"
)

// NewRecompressionLimiter builds a Modifier that greedily accepts
// New/Both entries by descending recompression cost, keeping an entry
// iff the running total plus its cost still fits under budget, and
// downgrading every rejected entry to Neither. A rejected entry does
// not preempt smaller later candidates: acceptance is tested
// individually per entry, not by taking a prefix of the sorted list.
// Downgraded entries are marked ResourceConstrained.
//
// A non-positive budget disables the limiter entirely.
func NewRecompressionLimiter(budget int64) Modifier {
	return func(entries []PlanEntry) []PlanEntry {
		if budget <= 0 {
			return entries
		}

		candidates := make([]int, 0, len(entries))
		for i, e := range entries {
			if e.UncompressionOption == New || e.UncompressionOption == Both {
				candidates = append(candidates, i)
			}
		}

		sort.Slice(candidates, func(a, b int) bool {
			return entries[candidates[a]].cost > entries[candidates[b]].cost
		})

		var running int64
		for _, idx := range candidates {
			if running+entries[idx].cost <= budget {
				running += entries[idx].cost
				continue
			}

			entries[idx].UncompressionOption = Neither
			entries[idx].UncompressionOptionExplanation = ResourceConstrained
			entries[idx].newParams = deflateparam.Parameters{}
		}

		return entries
	}
}
