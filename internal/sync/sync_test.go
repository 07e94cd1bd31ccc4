package sync

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/skimreader/skim/internal/migrations"
	"github.com/skimreader/skim/internal/sqlite"
)

func newTestRepo(t *testing.T) sqlite.Repo {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	// Every pooled connection to :memory: is its own database.
	dbx.SetMaxOpenConns(1)

	require.NoError(t, migrations.Run(dbx))

	return sqlite.New(dbx)
}

// stubAuth satisfies the authenticator surface with fixed tokens.
type stubAuth struct {
	invalidated int
}

func (a *stubAuth) Token(ctx context.Context) (string, error)     { return "session-token", nil }
func (a *stubAuth) EditToken(ctx context.Context) (string, error) { return "edit-token", nil }
func (a *stubAuth) Invalidate()                                   { a.invalidated++ }
