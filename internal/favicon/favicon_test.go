package favicon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimreader/skim/internal/skim"
)

type stubSubs struct {
	subs []skim.Subscription
}

func (s *stubSubs) ReplaceSubscriptions(ctx context.Context, subs []skim.Subscription, labels []skim.Label, memberships []skim.LabelMembership) error {
	return nil
}

func (s *stubSubs) AllSubscriptions(ctx context.Context) ([]skim.Subscription, error) {
	return s.subs, nil
}

func (s *stubSubs) AllLabels(ctx context.Context) ([]skim.Label, error) { return nil, nil }

func (s *stubSubs) Subscription(ctx context.Context, id string) (skim.Subscription, error) {
	return skim.Subscription{}, skim.ErrNotFound
}

func TestFetcher_Sync(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "/favicon.ico", r.URL.Path)
		w.Write([]byte("icon-bytes"))
	}))
	defer srv.Close()

	f, err := New(t.TempDir(), &stubSubs{subs: []skim.Subscription{
		{ID: "feed/1", URL: srv.URL + "/some/page"},
	}})
	require.NoError(t, err)

	require.NoError(t, f.Sync(context.Background()))

	byts, err := os.ReadFile(f.Path(srv.URL + "/some/page"))
	require.NoError(t, err)
	assert.Equal(t, "icon-bytes", string(byts))

	// Already cached: nothing refetched.
	require.NoError(t, f.Sync(context.Background()))
	assert.Equal(t, 1, requests)
}

func TestFetcher_Sync_FailureLeavesPlaceholder(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := New(t.TempDir(), &stubSubs{subs: []skim.Subscription{
		{ID: "feed/1", URL: srv.URL},
	}})
	require.NoError(t, err)

	require.NoError(t, f.Sync(context.Background()))

	info, err := os.Stat(f.Path(srv.URL))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// The placeholder also stops retries.
	require.NoError(t, f.Sync(context.Background()))
	assert.Equal(t, 1, requests)
}

func TestFetcher_PathIsStable(t *testing.T) {
	f, err := New(t.TempDir(), &stubSubs{})
	require.NoError(t, err)

	assert.Equal(t, f.Path("https://a.example"), f.Path("https://a.example"))
	assert.NotEqual(t, f.Path("https://a.example"), f.Path("https://b.example"))
}
