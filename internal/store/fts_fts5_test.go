//go:build sqlite_fts5

package store

import (
	"context"
	"testing"
	"time"

	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/retrieval"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM beliefs_fts`).Scan(&count); err != nil {
		t.Fatalf("beliefs_fts table missing: %v", err)
	}
}

func ftsScores(t *testing.T, db *DB, query string, ids ...string) []float64 {
	t.Helper()
	cands := make([]retrieval.Candidate, len(ids))
	for i, id := range ids {
		cands[i] = retrieval.Candidate{ID: id}
	}
	s, err := db.BeliefScorer(retrieval.DefaultBM25()).Score(context.Background(), query, cands)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	return s
}

func TestFTS5_ScoresMatchingBeliefs(t *testing.T) {
	db := testDB(t)
	for id, text := range map[string]string{
		"b1": "knee pain after long runs",
		"b2": "likes long runs on sunday",
		"b3": "swims twice a week",
	} {
		if _, _, err := db.InsertOrTouchBelief(belief(id, text), text); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	s := ftsScores(t, db, "the knee pain", "b1", "b2", "b3")
	if s[0] <= 0 {
		t.Errorf("b1 should match, score %v", s[0])
	}
	if s[1] != 0 || s[2] != 0 {
		t.Errorf("non-matching beliefs scored %v", s[1:])
	}

	s = ftsScores(t, db, "Long RUNS", "b1", "b2")
	if s[0] <= 0 || s[1] <= 0 {
		t.Errorf("both should match, got %v", s)
	}
}

func TestFTS5_ArchiveRemovesFromIndex(t *testing.T) {
	db := testDB(t)
	if _, _, err := db.InsertOrTouchBelief(belief("b1", "vanishing belief"), "vanishing belief"); err != nil {
		t.Fatal(err)
	}
	_, err := db.MutateBelief("b1", func(b *models.Belief) error {
		now := time.Now()
		b.Status = models.BeliefArchived
		b.ArchivedAt = &now
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s := ftsScores(t, db, "vanishing", "b1"); s[0] != 0 {
		t.Errorf("archived belief still indexed, score %v", s[0])
	}
}

func TestFTS5_ReviseReplacesContent(t *testing.T) {
	db := testDB(t)
	if _, _, err := db.InsertOrTouchBelief(belief("b1", "original text"), "original text"); err != nil {
		t.Fatal(err)
	}
	_, err := db.ReviseBelief("b1", "replacement text", func(b *models.Belief) error {
		b.Text = "replacement text"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s := ftsScores(t, db, "original", "b1"); s[0] != 0 {
		t.Error("old FTS content should be gone")
	}
	if s := ftsScores(t, db, "replacement", "b1"); s[0] <= 0 {
		t.Error("FTS not updated")
	}
}
