// Skim is a local-first client daemon for a Reader-style feed service.
//
// It mirrors the account's items into a sqlite cache, pushes locally made
// read/starred changes back up, and serves the cache over a small HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"

	"github.com/skimreader/skim/internal/auth"
	"github.com/skimreader/skim/internal/blob"
	"github.com/skimreader/skim/internal/favicon"
	"github.com/skimreader/skim/internal/logger"
	"github.com/skimreader/skim/internal/migrations"
	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/server"
	"github.com/skimreader/skim/internal/sqlite"
	"github.com/skimreader/skim/internal/summary"
	"github.com/skimreader/skim/internal/sync"
)

type config struct {
	Port       int    `env:"PORT, default=4030"`
	Database   string `env:"DATABASE, required"`
	ContentDir string `env:"CONTENT_DIR, required"`
	IconDir    string `env:"ICON_DIR, required"`

	// The Reader-style API to sync against and its session token.
	APIURL string `env:"API_URL, required"`
	Token  string `env:"TOKEN, required"`

	// How many non-starred items to keep cached; 0 disables the cap.
	CacheItems int `env:"CACHE_ITEMS, default=1000"`
	// How often to run a full pass on its own; 0 means only on request.
	SyncEvery time.Duration `env:"SYNC_EVERY, default=30m"`

	CorsHeader string `env:"CORS_HEADER, default=*"`

	// Set to enable the item summary endpoint.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := runDaemon(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func runDaemon(ctx context.Context, cfg config) error {
	slog.Info("running", "port", cfg.Port, "database", cfg.Database)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	repo := sqlite.New(dbx)

	blobs, err := blob.New(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("error opening content store: %s", err)
	}

	authClient := auth.New(cfg.APIURL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	client := reader.New(cfg.APIURL, authClient)

	orch := sync.NewOrchestrator(
		sync.NewFlags(repo, client, authClient),
		sync.NewIDs(repo, client, cfg.CacheItems),
		sync.NewItems(repo, blobs, client, cfg.CacheItems),
		sync.NewSubscriptions(repo, client),
	)

	icons, err := favicon.New(cfg.IconDir, repo)
	if err != nil {
		return fmt.Errorf("error opening icon store: %s", err)
	}

	var summarizer *summary.Summarizer
	if cfg.AnthropicAPIKey != "" {
		summarizer = summary.New(cfg.AnthropicAPIKey)
	}

	srvr := server.New(server.Config{
		Port:       cfg.Port,
		CorsHeader: cfg.CorsHeader,
	}, repo, blobs, client, orch, icons, summarizer)

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}
		return nil
	}, func(error) {
		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srvr.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}
	})
	if cfg.SyncEvery > 0 {
		tickCtx, tickCancel := context.WithCancel(ctx)
		g.Add(func() error {
			ticker := time.NewTicker(cfg.SyncEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := orch.SyncAll(tickCtx); err != nil {
						slog.Error("periodic sync failed", "error", err)
					}
				case <-tickCtx.Done():
					return nil
				}
			}
		}, func(error) {
			tickCancel()
		})
	}

	err = g.Run()
	if errors.As(err, &run.SignalError{}) {
		slog.Info("shutting down", "signal", err)
		return nil
	}
	return err
}
