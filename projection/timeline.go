// Package projection builds local timelines from observed messages.
// Handles ordering and deduplication.
// Does not emit events or interact with UI directly.
package projection

import (
	"chat-relay/domain"
	"sort"

	"github.com/samber/lo"
)

// Merge reconciles a server-fetched history with socket-delivered
// messages into one deduplicated, timestamp-sorted sequence. A record
// present in both (its own persistence response echoed back, or history
// fetched after the broadcast landed) appears once; the first occurrence
// wins since records are immutable. Ties on CreatedAt order by ID so the
// result is deterministic.
func Merge(serverMessages, socketMessages []domain.Message) []domain.Message {
	merged := lo.UniqBy(
		append(append([]domain.Message{}, serverMessages...), socketMessages...),
		func(m domain.Message) string { return m.ID },
	)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}
