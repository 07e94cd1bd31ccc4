package sqlite

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/skimreader/skim/internal/migrations"
	"github.com/skimreader/skim/internal/skim"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	// Every pooled connection to :memory: is its own database.
	dbx.SetMaxOpenConns(1)

	require.NoError(t, migrations.Run(dbx))

	return New(dbx)
}

func stamps(pairs ...int64) []skim.IDStamp {
	var out []skim.IDStamp
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, skim.IDStamp{ID: pairs[i], Stamp: pairs[i+1]})
	}
	return out
}

func TestReconcileIDs_FreshCache(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	err := repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100, 2, 100, 3, 100),
		Unread:      stamps(2, 100, 3, 100),
		Starred:     stamps(3, 100, 9, 50),
	})
	require.NoError(t, err)

	// Every reported id exists and needs content.
	dirty, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3, 9}, dirty)

	count, err := repo.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	item, err := repo.Item(ctx, 3)
	require.NoError(t, err)
	assert.True(t, item.Unread)
	assert.True(t, item.Starred)
	assert.False(t, item.ToDelete)
}

func TestReconcileIDs_UnreadOutsideReadingListIgnored(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	err := repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100, 2, 100, 3, 100),
		Unread:      stamps(2, 100, 3, 100, 9, 100),
		Starred:     nil,
	})
	require.NoError(t, err)

	count, err := repo.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The stray id is still cached (it was reported), just not unread.
	item, err := repo.Item(ctx, 9)
	require.NoError(t, err)
	assert.False(t, item.Unread)
}

func TestReconcileIDs_Idempotent(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		args = skim.ReconcileArgs{
			ReadingList: stamps(1, 100, 2, 200),
			Unread:      stamps(1, 100),
			Starred:     stamps(2, 200),
		}
	)

	require.NoError(t, repo.ReconcileIDs(ctx, args))
	first, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.ReconcileIDs(ctx, args))
	second, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, first, second)

	count, err := repo.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcileIDs_StaleStampStaysClean(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 500),
	}))
	require.NoError(t, repo.UpdateItemsContent(ctx, []skim.ItemMeta{{ID: 1, Title: "cached", Stamp: 500}}))

	// The remote reports the same stamp; no refetch should be scheduled.
	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 500),
	}))

	dirty, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	// A fresher stamp does schedule one.
	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 600),
	}))
	dirty, err = repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, dirty)
}

func TestReconcileIDs_UnfetchedRowStaysDirty(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		args = skim.ReconcileArgs{ReadingList: stamps(1, 100, 2, 100)}
	)

	require.NoError(t, repo.ReconcileIDs(ctx, args))

	// No content pass ran in between: the same id set must re-mark both
	// rows, not silently drop their dirty bits.
	require.NoError(t, repo.ReconcileIDs(ctx, args))

	dirty, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, dirty)

	// Once one row's content lands at that stamp, only the other stays due.
	require.NoError(t, repo.UpdateItemsContent(ctx, []skim.ItemMeta{{ID: 1, Stamp: 100}}))
	require.NoError(t, repo.ReconcileIDs(ctx, args))

	dirty, err = repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, dirty)
}

func TestCollectGarbage_RemovesTombstoned(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100, 2, 100),
	}))

	// The remote no longer reports 2.
	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100),
	}))

	deleted, err := repo.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, deleted)

	_, err = repo.Item(ctx, 2)
	assert.ErrorIs(t, err, skim.ErrNotFound)

	_, err = repo.Item(ctx, 1)
	assert.NoError(t, err)
}

func TestCollectGarbage_PinnedByLocalStar(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100, 2, 100),
	}))

	// Drop 2 remotely but star it locally before GC runs.
	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100),
	}))
	require.NoError(t, repo.SetStarred(ctx, 2, true))

	deleted, err := repo.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.NotContains(t, deleted, int64(2))

	_, err = repo.Item(ctx, 2)
	assert.NoError(t, err)
}

func TestEvictOver(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100, 2, 100, 3, 100, 4, 100),
		Starred:     stamps(2, 100),
	}))
	for id, tm := range map[int64]int64{1: 40, 2: 10, 3: 30, 4: 20} {
		require.NoError(t, repo.UpdateItemsContent(ctx, []skim.ItemMeta{{ID: id, Time: tm}}))
	}

	// Cap of 2 non-starred rows: the starred row doesn't count, the two
	// oldest unstarred rows go.
	evicted, err := repo.EvictOver(ctx, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{4}, evicted)

	_, err = repo.Item(ctx, 2)
	assert.NoError(t, err)
	_, err = repo.Item(ctx, 4)
	assert.ErrorIs(t, err, skim.ErrNotFound)
}

func TestQueueFlag_Coalesces(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.QueueFlag(ctx, 7, skim.TagRead, false))
	require.NoError(t, repo.QueueFlag(ctx, 7, skim.TagRead, true))

	adds, err := repo.PendingFlags(ctx, skim.TagRead, false)
	require.NoError(t, err)
	assert.Empty(t, adds)

	removes, err := repo.PendingFlags(ctx, skim.TagRead, true)
	require.NoError(t, err)
	require.Len(t, removes, 1)
	assert.Equal(t, int64(7), removes[0].ItemID)
}

func TestDeleteFlags(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.QueueFlag(ctx, 1, skim.TagStarred, false))
	require.NoError(t, repo.QueueFlag(ctx, 2, skim.TagStarred, false))

	pending, err := repo.PendingFlags(ctx, skim.TagStarred, false)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, repo.DeleteFlags(ctx, []int64{pending[0].ID}))

	pending, err = repo.PendingFlags(ctx, skim.TagStarred, false)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ItemID)
}

func TestReplaceSubscriptions(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	err := repo.ReplaceSubscriptions(ctx,
		[]skim.Subscription{{ID: "feed/1", URL: "https://a.example", Title: "A"}},
		[]skim.Label{{ID: "label/Tech", Name: "Tech"}},
		[]skim.LabelMembership{{ItemID: "feed/1", LabelID: "label/Tech"}},
	)
	require.NoError(t, err)

	// A second pass replaces the snapshot wholesale.
	err = repo.ReplaceSubscriptions(ctx,
		[]skim.Subscription{{ID: "feed/2", URL: "https://b.example", Title: "B"}},
		nil, nil,
	)
	require.NoError(t, err)

	subs, err := repo.AllSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "feed/2", subs[0].ID)

	labels, err := repo.AllLabels(ctx)
	require.NoError(t, err)
	assert.Empty(t, labels)

	_, err = repo.Subscription(ctx, "feed/1")
	assert.ErrorIs(t, err, skim.ErrNotFound)
}

func TestItemsByLabel(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.ReplaceSubscriptions(ctx,
		[]skim.Subscription{
			{ID: "feed/1", Title: "A"},
			{ID: "feed/2", Title: "B"},
		},
		[]skim.Label{{ID: "label/Tech", Name: "Tech"}},
		[]skim.LabelMembership{{ItemID: "feed/1", LabelID: "label/Tech"}},
	))
	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100, 2, 100),
		Unread:      stamps(1, 100, 2, 100),
	}))
	require.NoError(t, repo.UpdateItemsContent(ctx, []skim.ItemMeta{
		{ID: 1, Subscription: "feed/1", Title: "in tech"},
		{ID: 2, Subscription: "feed/2", Title: "not in tech"},
	}))

	items, err := repo.ItemsByLabel(ctx, "label/Tech", skim.CategoryUnread)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
}

func TestItemsByCategory(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: stamps(1, 100, 2, 100, 3, 100),
		Unread:      stamps(1, 100),
		Starred:     stamps(2, 100),
	}))
	require.NoError(t, repo.UpdateItemsContent(ctx, []skim.ItemMeta{
		{ID: 1, Time: 30}, {ID: 2, Time: 20}, {ID: 3, Time: 10},
	}))

	all, err := repo.ItemsByCategory(ctx, skim.CategoryAll, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, int64(1), all[0].ID)

	unread, err := repo.ItemsByCategory(ctx, skim.CategoryUnread, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, int64(1), unread[0].ID)

	starred, err := repo.ItemsByCategory(ctx, skim.CategoryStarred, 0)
	require.NoError(t, err)
	require.Len(t, starred, 1)
	assert.Equal(t, int64(2), starred[0].ID)

	limited, err := repo.ItemsByCategory(ctx, skim.CategoryAll, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
