package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/skimreader/skim/internal/blob"
	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/skim"
)

// fetchParallelism bounds how many content chunks are in flight at once.
const fetchParallelism = 4

// Items fetches full content and metadata for every dirty row, then runs
// garbage collection and the cache size cap.
type Items struct {
	store        skim.ItemStore
	blobs        *blob.Store
	client       *reader.Client
	placeholders Placeholders
	// cacheItems caps the non-starred row population after a pass.
	cacheItems int

	running atomic.Bool
}

func NewItems(store skim.ItemStore, blobs *blob.Store, client *reader.Client, cacheItems int) *Items {
	return &Items{
		store:        store,
		blobs:        blobs,
		client:       client,
		placeholders: DefaultPlaceholders,
		cacheItems:   cacheItems,
	}
}

// Sync drains the dirty set in chunks of the remote's batch bound. A failed
// chunk is logged and its rows stay dirty for the next pass; the pass always
// proceeds to garbage collection so tombstoned rows never linger.
func (s *Items) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		slog.WarnContext(ctx, "items are already being synchronized")
		return skim.ErrBusy
	}
	defer s.running.Store(false)

	ids, err := s.store.DirtyItemIDs(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error selecting dirty items", "error", err)
		return fmt.Errorf("error selecting dirty items: %w", err)
	}

	if len(ids) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchParallelism)
		for _, part := range splitChunks(ids, reader.ChunkSize) {
			g.Go(func() error {
				s.syncChunk(gctx, part)
				return nil
			})
		}
		g.Wait()
	} else {
		slog.DebugContext(ctx, "no items need synchronization")
	}

	s.collectGarbage(ctx)

	slog.DebugContext(ctx, "items synchronization completed", "dirty", len(ids))

	return nil
}

// syncChunk fetches one content batch and persists it. The body goes to the
// blob store first; only rows whose content is durable get their metadata
// written and their dirty bit cleared.
func (s *Items) syncChunk(ctx context.Context, ids []int64) {
	raws, err := s.client.StreamContents(ctx, ids)
	if err != nil {
		slog.ErrorContext(ctx, "items chunk failed", "error", err, "count", len(ids))
		return
	}

	metas := make([]skim.ItemMeta, 0, len(raws))
	for _, raw := range raws {
		meta, content, err := normalizeItem(raw, s.placeholders)
		if err != nil {
			slog.ErrorContext(ctx, "error normalizing item", "error", err, "item", raw.ID)
			continue
		}
		if err := s.blobs.Write(meta.ID, content); err != nil {
			slog.ErrorContext(ctx, "error storing item content", "error", err, "item", meta.ID)
			continue
		}
		metas = append(metas, meta)
	}

	if err := s.store.UpdateItemsContent(ctx, metas); err != nil {
		slog.ErrorContext(ctx, "error persisting item metadata", "error", err)
	}
}

// collectGarbage removes tombstoned, unstarred rows and then enforces the
// cache size cap, dropping content blobs along with the rows.
func (s *Items) collectGarbage(ctx context.Context) {
	deleted, err := s.store.CollectGarbage(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "garbage collection failed", "error", err)
		return
	}
	s.removeBlobs(ctx, deleted)

	if s.cacheItems > 0 {
		evicted, err := s.store.EvictOver(ctx, s.cacheItems)
		if err != nil {
			slog.ErrorContext(ctx, "cache eviction failed", "error", err)
			return
		}
		s.removeBlobs(ctx, evicted)
	}
}

func (s *Items) removeBlobs(ctx context.Context, ids []int64) {
	for _, id := range ids {
		if err := s.blobs.Remove(id); err != nil {
			slog.ErrorContext(ctx, "error removing item content", "error", err, "item", id)
		}
	}
}
