// Package retrieval ranks short texts against a query by combining a
// lexical relevance score with embedding similarity.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "with": {},
}

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit and drops common English stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Normalize returns the canonical form of text used for duplicate detection.
func Normalize(text string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// Scorer assigns a lexical relevance score to every candidate for a query.
// Higher is better; 0 means no match.
type Scorer interface {
	Score(ctx context.Context, query string, cands []Candidate) ([]float64, error)
}

// BM25 is the Okapi BM25 ranking function.
type BM25 struct {
	K1 float64
	B  float64
}

// DefaultBM25 returns the conventional k1=1.2, b=0.75 parameters.
func DefaultBM25() BM25 { return BM25{K1: 1.2, B: 0.75} }

// Score implements Scorer. Statistics are computed over cands alone.
func (m BM25) Score(_ context.Context, query string, cands []Candidate) ([]float64, error) {
	docs := make([]string, len(cands))
	for i, c := range cands {
		docs[i] = c.Text
	}
	return m.ScoreTexts(query, docs), nil
}

// ScoreTexts scores plain documents against query.
func (m BM25) ScoreTexts(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	terms := Tokenize(query)
	if len(terms) == 0 || len(docs) == 0 {
		return scores
	}

	tfs := make([]map[string]int, len(docs))
	lens := make([]float64, len(docs))
	df := make(map[string]int)
	var total float64
	for i, d := range docs {
		toks := Tokenize(d)
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		tfs[i] = tf
		lens[i] = float64(len(toks))
		total += lens[i]
	}
	avg := total / float64(len(docs))
	if avg == 0 {
		return scores
	}

	n := float64(len(docs))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		d := float64(df[t])
		if d == 0 {
			continue
		}
		idf := math.Log(1 + (n-d+0.5)/(d+0.5))
		for i, tf := range tfs {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			scores[i] += idf * f * (m.K1 + 1) / (f + m.K1*(1-m.B+m.B*lens[i]/avg))
		}
	}
	return scores
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Weights controls how lexical and semantic scores are combined.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// Candidate is one rankable document.
type Candidate struct {
	ID          string
	Text        string
	Embedding   []float32
	LastTouched time.Time
}

// Hit is a ranked candidate with its component scores.
type Hit struct {
	Index    int
	Lexical  float64
	Semantic float64
	Score    float64
}

// Rank combines the lexical scores of cands (one per candidate, as a Scorer
// returns them) with the cosine similarity to queryVec and returns at most k
// hits with a positive combined score, best first. Lexical scores are
// divided by the best lexical score so both components lie in [0,1]. A nil
// queryVec ranks on the lexical score alone. Ties go to the more recently
// touched candidate, then to the smaller id.
func Rank(lexical []float64, queryVec []float32, cands []Candidate, w Weights, k int) []Hit {
	if len(cands) == 0 || k <= 0 || len(lexical) != len(cands) {
		return nil
	}
	var best float64
	for _, s := range lexical {
		best = math.Max(best, s)
	}

	lw, sw := w.Lexical, w.Semantic
	if queryVec == nil {
		lw, sw = 1, 0
	}

	hits := make([]Hit, 0, len(cands))
	for i, c := range cands {
		h := Hit{Index: i}
		if best > 0 {
			h.Lexical = lexical[i] / best
		}
		if queryVec != nil {
			h.Semantic = math.Max(0, Cosine(queryVec, c.Embedding))
		}
		h.Score = lw*h.Lexical + sw*h.Semantic
		if h.Score > 0 {
			hits = append(hits, h)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ta, tb := cands[a.Index].LastTouched, cands[b.Index].LastTouched
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return cands[a.Index].ID < cands[b.Index].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
