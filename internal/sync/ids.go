package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/skim"
)

// IDs refreshes the cache's id universe from the three canonical remote
// sets: the reading list, its unread portion, and the starred stream.
type IDs struct {
	store  skim.ItemStore
	client *reader.Client
	// limit caps how many ids each remote listing returns, mirroring the
	// cache-items setting.
	limit int

	running atomic.Bool
}

func NewIDs(store skim.ItemStore, client *reader.Client, limit int) *IDs {
	return &IDs{store: store, client: client, limit: limit}
}

// Sync fetches the three id sets concurrently and reconciles them into the
// cache in one transaction.
//
// The unread set is only meaningful relative to the reading list, so nothing
// is applied until all three responses are in hand; the store then performs
// tombstoning, revival, dirty-marking and reflagging atomically. If any of
// the three requests fails the pass aborts without touching the cache -
// applying a partial universe after tombstoning everything would amount to a
// mass deletion.
func (s *IDs) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		slog.ErrorContext(ctx, "ids are already being synchronized")
		return skim.ErrBusy
	}
	defer s.running.Store(false)

	var args skim.ReconcileArgs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		args.ReadingList, err = s.client.ItemIDs(gctx, skim.CategoryAll, s.limit)
		return err
	})
	g.Go(func() error {
		var err error
		args.Unread, err = s.client.ItemIDs(gctx, skim.CategoryUnread, s.limit)
		return err
	})
	g.Go(func() error {
		var err error
		args.Starred, err = s.client.ItemIDs(gctx, skim.CategoryStarred, s.limit)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "ids synchronization failed", "error", err)
		return fmt.Errorf("error fetching id sets: %w", err)
	}

	if err := s.store.ReconcileIDs(ctx, args); err != nil {
		return fmt.Errorf("error reconciling ids: %w", err)
	}

	slog.DebugContext(ctx, "ids synchronization completed",
		"reading_list", len(args.ReadingList),
		"unread", len(args.Unread),
		"starred", len(args.Starred),
	)

	return nil
}
