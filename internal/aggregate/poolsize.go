package aggregate

import (
	"sort"

	"intentScope/internal/model"
)

// AssignPoolSizes returns the roots ordered by (block, log index) with
// EstimatedPoolSize set to currentMax+1, currentMax+2, ... in that order.
// The input slice is not modified.
func AssignPoolSizes(roots []model.PrivacyRootRecord, currentMax uint64) []model.PrivacyRootRecord {
	out := make([]model.PrivacyRootRecord, len(roots))
	copy(out, roots)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})

	next := currentMax
	for i := range out {
		next++
		out[i].EstimatedPoolSize = next
	}
	return out
}
