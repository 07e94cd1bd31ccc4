package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimreader/skim/internal/blob"
	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/skim"
)

func newTestBlobs(t *testing.T) *blob.Store {
	t.Helper()

	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)
	return blobs
}

// contentsHandler answers stream/items/contents with a synthetic item per
// requested id.
func contentsHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stream/items/contents", r.URL.Path)
		require.NoError(t, r.ParseForm())

		items := make([]string, 0, len(r.PostForm["i"]))
		for _, id := range r.PostForm["i"] {
			items = append(items, fmt.Sprintf(
				`{"id":"%s","title":"title %s","timestampUsec":"100","summary":{"content":"<p>body %s</p>"},"origin":{"streamId":"feed/1"}}`,
				id, id, id,
			))
		}
		fmt.Fprint(w, `{"items":[`+strings.Join(items, ",")+`]}`)
	}
}

func TestItems_Sync(t *testing.T) {
	srv := httptest.NewServer(contentsHandler(t))
	defer srv.Close()

	var (
		ctx    = context.Background()
		repo   = newTestRepo(t)
		blobs  = newTestBlobs(t)
		syncer = NewItems(repo, blobs, reader.New(srv.URL, &stubAuth{}), 0)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: []skim.IDStamp{{ID: 1, Stamp: 100}, {ID: 2, Stamp: 100}},
	}))

	require.NoError(t, syncer.Sync(ctx))

	item, err := repo.Item(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "title 1", item.Title)
	assert.Equal(t, "body 1", item.Summary)
	assert.Equal(t, "feed/1", item.Subscription)
	assert.False(t, item.ToSync)

	content, err := blobs.Read(2)
	require.NoError(t, err)
	assert.Equal(t, "<p>body 2</p>", content)

	dirty, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestItems_Sync_CollectsGarbage(t *testing.T) {
	srv := httptest.NewServer(contentsHandler(t))
	defer srv.Close()

	var (
		ctx    = context.Background()
		repo   = newTestRepo(t)
		blobs  = newTestBlobs(t)
		syncer = NewItems(repo, blobs, reader.New(srv.URL, &stubAuth{}), 0)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: []skim.IDStamp{{ID: 1, Stamp: 100}, {ID: 2, Stamp: 100}},
	}))
	require.NoError(t, syncer.Sync(ctx))

	// The remote dropped 2; the next content pass sweeps it, blob included.
	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: []skim.IDStamp{{ID: 1, Stamp: 100}},
	}))
	require.NoError(t, syncer.Sync(ctx))

	_, err := repo.Item(ctx, 2)
	assert.ErrorIs(t, err, skim.ErrNotFound)

	_, err = blobs.Read(2)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	_, err = blobs.Read(1)
	assert.NoError(t, err)
}

func TestItems_Sync_EnforcesCacheCap(t *testing.T) {
	srv := httptest.NewServer(contentsHandler(t))
	defer srv.Close()

	var (
		ctx    = context.Background()
		repo   = newTestRepo(t)
		blobs  = newTestBlobs(t)
		syncer = NewItems(repo, blobs, reader.New(srv.URL, &stubAuth{}), 1)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: []skim.IDStamp{{ID: 1, Stamp: 100}, {ID: 2, Stamp: 100}},
	}))
	require.NoError(t, repo.UpdateItemsContent(ctx, []skim.ItemMeta{
		{ID: 1, Time: 200},
		{ID: 2, Time: 100},
	}))

	require.NoError(t, syncer.Sync(ctx))

	// Only the newest row survives the cap of one.
	_, err := repo.Item(ctx, 1)
	assert.NoError(t, err)

	_, err = repo.Item(ctx, 2)
	assert.ErrorIs(t, err, skim.ErrNotFound)
}

func TestItems_Sync_BatchesAtChunkBound(t *testing.T) {
	var requests atomic.Int64
	handler := contentsHandler(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, r.ParseForm())
		assert.LessOrEqual(t, len(r.PostForm["i"]), reader.ChunkSize)
		handler(w, r)
	}))
	defer srv.Close()

	var (
		ctx    = context.Background()
		repo   = newTestRepo(t)
		blobs  = newTestBlobs(t)
		syncer = NewItems(repo, blobs, reader.New(srv.URL, &stubAuth{}), 0)
	)

	list := make([]skim.IDStamp, 0, reader.ChunkSize+1)
	for i := int64(1); i <= int64(reader.ChunkSize)+1; i++ {
		list = append(list, skim.IDStamp{ID: i, Stamp: 100})
	}
	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{ReadingList: list}))

	require.NoError(t, syncer.Sync(ctx))

	// 251 dirty ids split into a full batch plus a single straggler.
	assert.Equal(t, int64(2), requests.Load())

	dirty, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestItems_Sync_FailedChunkStaysDirty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var (
		ctx    = context.Background()
		repo   = newTestRepo(t)
		syncer = NewItems(repo, newTestBlobs(t), reader.New(srv.URL, &stubAuth{}), 0)
	)

	require.NoError(t, repo.ReconcileIDs(ctx, skim.ReconcileArgs{
		ReadingList: []skim.IDStamp{{ID: 1, Stamp: 100}},
	}))

	// A failed chunk is not a failed pass.
	require.NoError(t, syncer.Sync(ctx))

	dirty, err := repo.DirtyItemIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, dirty)
}
