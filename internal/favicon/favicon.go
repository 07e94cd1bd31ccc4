// Package favicon maintains a best-effort cache of site icons on disk.
//
// Icons are cosmetic: a fetch failure records an empty placeholder so the
// site is not hammered on every pass, and nothing here ever fails a sync.
package favicon

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/skimreader/skim/internal/skim"
)

// maxIconSize caps how much of a response we are willing to store.
const maxIconSize = 512 * 1024

type Fetcher struct {
	dir   string
	store skim.SubscriptionStore
	http  *http.Client

	running atomic.Bool
}

func New(dir string, store skim.SubscriptionStore) (*Fetcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating icon directory: %s", err)
	}
	return &Fetcher{
		dir:   dir,
		store: store,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Path returns where the icon for a site url lives, whether or not a fetch
// has happened yet. Callers should treat a missing or empty file as "no
// icon".
func (f *Fetcher) Path(siteURL string) string {
	return filepath.Join(f.dir, fmt.Sprintf("%x", md5.Sum([]byte(siteURL))))
}

// Sync fetches an icon for every subscription that doesn't have one cached.
// Existing files, placeholders included, are never refetched.
func (f *Fetcher) Sync(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		slog.ErrorContext(ctx, "favicons are already being synchronized")
		return skim.ErrBusy
	}
	defer f.running.Store(false)

	subs, err := f.store.AllSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("error listing subscriptions: %w", err)
	}

	fetched := 0
	for _, sub := range subs {
		if sub.URL == "" {
			continue
		}
		path := f.Path(sub.URL)
		if _, err := os.Stat(path); err == nil {
			continue
		}

		if err := f.fetch(ctx, sub.URL, path); err != nil {
			slog.DebugContext(ctx, "favicon fetch failed", "url", sub.URL, "error", err)
			// Leave a placeholder so we don't retry every pass.
			if werr := os.WriteFile(path, nil, 0o644); werr != nil {
				slog.ErrorContext(ctx, "error writing icon placeholder", "error", werr)
			}
			continue
		}
		fetched++
	}

	slog.DebugContext(ctx, "favicon synchronization completed", "fetched", fetched)

	return nil
}

func (f *Fetcher) fetch(ctx context.Context, siteURL, path string) error {
	u, err := url.Parse(siteURL)
	if err != nil {
		return fmt.Errorf("error parsing site url: %s", err)
	}
	u.Path = "/favicon.ico"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("error creating request: %s", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("error fetching icon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status fetching icon: %d", resp.StatusCode)
	}

	byts, err := io.ReadAll(io.LimitReader(resp.Body, maxIconSize))
	if err != nil {
		return fmt.Errorf("error reading icon body: %s", err)
	}

	if err := os.WriteFile(path, byts, 0o644); err != nil {
		return fmt.Errorf("error writing icon: %s", err)
	}

	return nil
}
