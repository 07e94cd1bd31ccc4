package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/skim"
)

// Flags pushes locally queued read/kept-unread/starred mutations to the
// remote service. The queue is durable, so a pass that fails halfway simply
// leaves the unacknowledged rows for the next pass.
type Flags struct {
	store  skim.FlagStore
	client *reader.Client
	auth   skim.Authenticator

	running atomic.Bool
}

func NewFlags(store skim.FlagStore, client *reader.Client, auth skim.Authenticator) *Flags {
	return &Flags{store: store, client: client, auth: auth}
}

// Sync walks the (tag, remove) matrix, batching each group's item ids at the
// remote's chunk bound. A batch's pending rows are deleted only once the
// remote accepted that batch; failed batches are logged and stay queued.
// The pass itself always runs to completion.
func (s *Flags) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		slog.ErrorContext(ctx, "flags are already being synchronized")
		return skim.ErrBusy
	}
	defer s.running.Store(false)

	sent := 0
	for _, tag := range skim.StateTags {
		for _, remove := range []bool{false, true} {
			pending, err := s.store.PendingFlags(ctx, tag, remove)
			if err != nil {
				slog.ErrorContext(ctx, "error reading pending flags", "error", err)
				continue
			}
			if len(pending) == 0 {
				continue
			}

			for _, batch := range splitChunks(pending, reader.ChunkSize) {
				itemIDs := make([]int64, 0, len(batch))
				rowIDs := make([]int64, 0, len(batch))
				for _, f := range batch {
					itemIDs = append(itemIDs, f.ItemID)
					rowIDs = append(rowIDs, f.ID)
				}

				err := s.client.EditTag(ctx, tag, remove, itemIDs)
				if errors.Is(err, reader.ErrForbidden) {
					// The edit token was rejected; the next pass starts from
					// fresh credentials.
					s.auth.Invalidate()
					slog.ErrorContext(ctx, "flag batch forbidden", "tag", tag, "error", err)
					continue
				}
				if err != nil {
					slog.ErrorContext(ctx, "flag batch failed", "tag", tag, "error", err)
					continue
				}

				if err := s.store.DeleteFlags(ctx, rowIDs); err != nil {
					slog.ErrorContext(ctx, "error deleting acknowledged flags", "error", err)
					continue
				}
				sent += len(batch)
			}
		}
	}

	slog.DebugContext(ctx, "flags synchronization completed", "sent", sent)

	return nil
}
