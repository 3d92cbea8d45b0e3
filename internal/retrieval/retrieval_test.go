package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	require.Equal(t, []string{"prefers", "morning", "runs", "5km"}, Tokenize("Prefers the morning-runs, 5km!"))
	require.Empty(t, Tokenize("the and of"))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, Normalize("  Left KNEE hurts!! "), Normalize("left knee, hurts"))
}

func TestBM25PrefersRarerAndDenserMatches(t *testing.T) {
	docs := []string{
		"knee pain after long runs",
		"likes long runs on sunday",
		"knee knee knee",
		"swims twice a week",
	}
	s := DefaultBM25().ScoreTexts("knee pain", docs)
	require.Len(t, s, 4)
	require.Greater(t, s[0], s[1])
	require.Greater(t, s[0], s[2])
	require.Zero(t, s[1])
	require.Zero(t, s[3])
}

func TestBM25EmptyInputs(t *testing.T) {
	require.Equal(t, []float64{0, 0}, DefaultBM25().ScoreTexts("", []string{"a b", "c"}))
	require.Empty(t, DefaultBM25().ScoreTexts("knee", nil))

	s, err := DefaultBM25().Score(context.Background(), "knee", []Candidate{{ID: "a", Text: "knee"}, {ID: "b", Text: "hip"}})
	require.NoError(t, err)
	require.Greater(t, s[0], 0.0)
	require.Zero(t, s[1])
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	require.InDelta(t, 0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	require.Zero(t, Cosine(nil, nil))
	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestRankCombinesScores(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{ID: "a", Text: "knee pain on descents", Embedding: []float32{1, 0}, LastTouched: now},
		{ID: "b", Text: "prefers trail running", Embedding: []float32{0.9, 0.1}, LastTouched: now},
		{ID: "c", Text: "vegetarian diet", Embedding: []float32{0, 1}, LastTouched: now},
	}
	hits := Rank(lexical(t, "knee pain", cands), []float32{1, 0}, cands, Weights{Lexical: 0.5, Semantic: 0.5}, 10)
	require.Len(t, hits, 2)
	require.Equal(t, 0, hits[0].Index)
	require.InDelta(t, 1, hits[0].Score, 1e-9)
	require.Equal(t, 1, hits[1].Index)
	for i := 1; i < len(hits); i++ {
		require.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestRankLexicalOnly(t *testing.T) {
	cands := []Candidate{
		{ID: "a", Text: "knee pain", Embedding: []float32{0, 1}},
		{ID: "b", Text: "ankle", Embedding: []float32{1, 0}},
	}
	hits := Rank(lexical(t, "knee", cands), nil, cands, Weights{Lexical: 0.3, Semantic: 0.7}, 5)
	require.Len(t, hits, 1)
	require.Equal(t, 0, hits[0].Index)
	require.InDelta(t, 1, hits[0].Score, 1e-9)
}

func TestRankTieBreaks(t *testing.T) {
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{ID: "z", Text: "hills", LastTouched: old},
		{ID: "y", Text: "hills", LastTouched: old.Add(time.Hour)},
		{ID: "x", Text: "hills", LastTouched: old},
	}
	hits := Rank(lexical(t, "hills", cands), nil, cands, Weights{}, 2)
	require.Len(t, hits, 2)
	require.Equal(t, "y", cands[hits[0].Index].ID)
	require.Equal(t, "x", cands[hits[1].Index].ID)
}

func TestRankRejectsMismatchedScores(t *testing.T) {
	cands := []Candidate{{ID: "a", Text: "knee"}}
	require.Nil(t, Rank([]float64{1, 2}, nil, cands, Weights{Lexical: 1}, 5))
}

func lexical(t *testing.T, query string, cands []Candidate) []float64 {
	t.Helper()
	s, err := DefaultBM25().Score(context.Background(), query, cands)
	require.NoError(t, err)
	return s
}
