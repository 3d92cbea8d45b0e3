//go:build !sqlite_fts5

package store

import (
	"database/sql"

	"github.com/starford/cadence/internal/retrieval"
)

// FTSEnabled reports whether belief text is indexed by SQLite FTS5.
const FTSEnabled = false

func initFTS(_ *sql.DB) error {
	// FTS5 not available; belief search scores text in Go.
	return nil
}

func ftsUpsertBelief(_ *sql.Tx, _, _ string) error { return nil }

func ftsDeleteBelief(_ *sql.Tx, _ string) {}

// BeliefScorer returns the lexical scorer for belief search. Without FTS5
// it is fallback, scoring the candidate texts in Go.
func (db *DB) BeliefScorer(fallback retrieval.BM25) retrieval.Scorer {
	return fallback
}
