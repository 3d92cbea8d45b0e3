//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/cadence/internal/retrieval"
)

// FTSEnabled reports whether belief text is indexed by SQLite FTS5.
const FTSEnabled = true

// initFTS creates the belief index and backfills active beliefs that are
// missing from it.
func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS beliefs_fts USING fts5(
			id UNINDEXED,
			text,
			tokenize = 'unicode61 remove_diacritics 2'
		);
		INSERT INTO beliefs_fts (id, text)
			SELECT id, text FROM beliefs
			WHERE status = 'active' AND id NOT IN (SELECT id FROM beliefs_fts);
	`)
	return err
}

func ftsUpsertBelief(tx *sql.Tx, id, text string) error {
	_, _ = tx.Exec(`DELETE FROM beliefs_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO beliefs_fts (id, text) VALUES (?, ?)`, id, text)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteBelief(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM beliefs_fts WHERE id = ?`, id)
}

// BeliefScorer returns the lexical scorer for belief search. With FTS5
// compiled in it is the index's own bm25() ranking, which always runs with
// k1=1.2 and b=0.75; fallback is not used.
func (db *DB) BeliefScorer(_ retrieval.BM25) retrieval.Scorer {
	return ftsScorer{conn: db.conn}
}

type ftsScorer struct {
	conn *sql.DB
}

// matchQuery ORs the quoted query terms so any term can match.
func matchQuery(query string) string {
	terms := retrieval.Tokenize(query)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

// Score implements retrieval.Scorer. FTS5 bm25() is negative with the best
// match lowest, so it is negated.
func (s ftsScorer) Score(ctx context.Context, query string, cands []retrieval.Candidate) ([]float64, error) {
	out := make([]float64, len(cands))
	q := matchQuery(query)
	if q == "" || len(cands) == 0 {
		return out, nil
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, -bm25(beliefs_fts)
		FROM beliefs_fts
		WHERE beliefs_fts MATCH ?
	`, q)
	if err != nil {
		return nil, fmt.Errorf("store: fts search: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		scores[id] = score
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, c := range cands {
		out[i] = scores[c.ID]
	}
	return out, nil
}
