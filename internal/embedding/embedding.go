// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/retrieval"
)

// Embedder computes the embedding of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding space; vectors from different models are
	// not comparable.
	Model() string
}

// Hash is an offline embedder based on signed feature hashing of word
// unigrams and bigrams. Texts sharing vocabulary land close together.
type Hash struct {
	dims int
}

// NewHash returns a hash embedder producing dims-dimensional vectors.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = 256
	}
	return &Hash{dims: dims}
}

// Model implements Embedder.
func (h *Hash) Model() string { return fmt.Sprintf("hash-%d", h.dims) }

// Embed implements Embedder. The result is L2-normalised; a text without
// tokens yields the zero vector.
func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.ErrDependencyUnavailable, "embedding.Hash", err)
	}
	vec := make([]float64, h.dims)
	toks := retrieval.Tokenize(text)
	for i, t := range toks {
		h.add(vec, t, 1)
		if i > 0 {
			h.add(vec, toks[i-1]+" "+t, 0.5)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dims)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *Hash) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// unavailable wraps err as a DependencyUnavailable error unless it already
// carries a kind.
func unavailable(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.New(apperr.ErrDependencyUnavailable, op, err)
}
