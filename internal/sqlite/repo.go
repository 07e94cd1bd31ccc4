// Package sqlite is the durable local cache behind the synchronizers.
package sqlite

import (
	"github.com/jmoiron/sqlx"

	"github.com/skimreader/skim/internal/skim"
)

// Ensure Repo implements the full store surface
var _ skim.Store = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// paramChunk bounds how many bound parameters a single IN (...) statement
// carries, well under sqlite's variable limit.
const paramChunk = 500

func chunk[T any](vals []T, size int) [][]T {
	var chunks [][]T
	for len(vals) > size {
		chunks = append(chunks, vals[:size])
		vals = vals[size:]
	}
	if len(vals) > 0 {
		chunks = append(chunks, vals)
	}
	return chunks
}
