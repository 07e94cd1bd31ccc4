// Package server exposes the local HTTP API: listing and reading cached
// items, queueing flag mutations, managing subscriptions, and kicking off
// synchronization passes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/skimreader/skim/internal/blob"
	skimerrs "github.com/skimreader/skim/internal/errors"
	"github.com/skimreader/skim/internal/favicon"
	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/serverutil"
	"github.com/skimreader/skim/internal/skim"
	"github.com/skimreader/skim/internal/summary"
	"github.com/skimreader/skim/internal/sync"
)

type (
	// Server is an instance of the local API over the item cache.
	Server struct {
		*http.Server

		fetchClient   *http.Client
		readableCache *lru.Cache[int64, string]

		store  skim.Store
		blobs  *blob.Store
		client *reader.Client
		orch   *sync.Orchestrator
		icons  *favicon.Fetcher

		// summarizer is nil when no API key is configured.
		summarizer *summary.Summarizer
	}

	Config struct {
		Port       int
		CorsHeader string
	}
)

func New(config Config, store skim.Store, blobs *blob.Store, client *reader.Client, orch *sync.Orchestrator, icons *favicon.Fetcher, summarizer *summary.Summarizer) *Server {
	var (
		r        = serverutil.ErrRouter{Router: mux.NewRouter()}
		cache, _ = lru.New[int64, string](256)
	)

	srvr := Server{
		fetchClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		readableCache: cache,
		store:         store,
		blobs:         blobs,
		client:        client,
		orch:          orch,
		icons:         icons,
		summarizer:    summarizer,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsHeader}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(serverutil.RequestIDMiddleware)
	r.Use(serverutil.AccessLogMiddleware)

	// Synchronization
	r.HandleFuncE("/api/sync", srvr.postSync).Methods(http.MethodPost)
	r.HandleFuncE("/api/sync/subscriptions", srvr.postSyncSubscriptions).Methods(http.MethodPost)

	// Item views
	r.HandleFuncE("/api/items", srvr.getItems).Methods(http.MethodGet)
	r.HandleFuncE("/api/items/{itemID}", srvr.getItem).Methods(http.MethodGet)
	r.HandleFuncE("/api/items/{itemID}/content", srvr.getItemContent).Methods(http.MethodGet)
	r.HandleFuncE("/api/items/{itemID}/summary", srvr.getItemSummary).Methods(http.MethodGet)
	r.HandleFuncE("/api/unread-count", srvr.getUnreadCount).Methods(http.MethodGet)

	// Flag mutations
	r.HandleFuncE("/api/items/{itemID}/read", srvr.postMark(skim.TagRead, skim.TagKeptUnread, false)).Methods(http.MethodPost)
	r.HandleFuncE("/api/items/{itemID}/unread", srvr.postMark(skim.TagKeptUnread, skim.TagRead, true)).Methods(http.MethodPost)
	r.HandleFuncE("/api/items/{itemID}/star", srvr.postStar(true)).Methods(http.MethodPost)
	r.HandleFuncE("/api/items/{itemID}/unstar", srvr.postStar(false)).Methods(http.MethodPost)

	// Subscription management
	r.HandleFuncE("/api/subscriptions", srvr.getSubscriptions).Methods(http.MethodGet)
	r.HandleFuncE("/api/subscriptions", srvr.postSubscriptions).Methods(http.MethodPost)
	r.HandleFuncE("/api/subscriptions/labels", srvr.postSubscriptionLabel).Methods(http.MethodPost)
	r.HandleFuncE("/api/subscriptions/icon", srvr.getSubscriptionIcon).Methods(http.MethodGet)
	r.HandleFuncE("/api/labels", srvr.getLabels).Methods(http.MethodGet)

	slog.Debug("configured skim server", "port", config.Port)

	return &srvr
}

// postSync kicks off a full pass in the background; the caller gets an
// immediate accepted response, or a conflict if one is already running.
func (s *Server) postSync(w http.ResponseWriter, r *http.Request) error {
	if err := s.startSync(s.orch.SyncAll); err != nil {
		return err
	}
	return serverutil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) postSyncSubscriptions(w http.ResponseWriter, r *http.Request) error {
	run := func(ctx context.Context) error {
		if err := s.orch.SyncSubscriptions(ctx); err != nil {
			return err
		}
		return s.icons.Sync(ctx)
	}
	if err := s.startSync(run); err != nil {
		return err
	}
	return serverutil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// startSync launches a pass detached from the request's lifetime. A refused
// pass reports back immediately; anything slower than that is presumed to be
// doing real work and its eventual error only goes to the log.
func (s *Server) startSync(run func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	go func() {
		err := run(context.Background())
		if err != nil && !errors.Is(err, skim.ErrBusy) {
			slog.Error("background sync failed", "error", err)
		}
		errc <- err
	}()

	select {
	case err := <-errc:
		if errors.Is(err, skim.ErrBusy) {
			return skimerrs.E(http.StatusConflict, "a synchronization pass is already running")
		}
		return err
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}
