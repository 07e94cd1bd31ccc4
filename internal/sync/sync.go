// Package sync reconciles the remote reader service into the local cache.
//
// Four synchronizers cooperate: Flags drains locally queued read/starred
// mutations, IDs refreshes the three canonical id sets and the tombstone
// state, Items refetches content for dirty rows and collects garbage, and
// Subscriptions replaces the subscription/label snapshot. The Orchestrator
// sequences the first three and runs Subscriptions independently.
package sync

// splitChunks cuts vals into runs of at most size, preserving order.
func splitChunks[T any](vals []T, size int) [][]T {
	var chunks [][]T
	for len(vals) > size {
		chunks = append(chunks, vals[:size])
		vals = vals[size:]
	}
	if len(vals) > 0 {
		chunks = append(chunks, vals)
	}
	return chunks
}
