// Package belief maintains scored statements about the athlete: creation
// with embeddings, a bounded confidence lifecycle, archival and hybrid
// lexical/semantic retrieval.
package belief

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/embedding"
	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/retrieval"
	"github.com/starford/cadence/internal/store"
)

// Confidence never reaches 0 or 1 exactly.
const (
	MinConfidence = 1e-6
	MaxConfidence = 1 - 1e-6
)

const (
	defaultTopK = 5
	maxTopK     = 50
)

// Config holds the lifecycle and ranking parameters.
type Config struct {
	DefaultConfidence float64
	Step              float64
	Floor             float64
	StalenessWindow   time.Duration
	Weights           retrieval.Weights
}

// DefaultConfig returns the stock lifecycle parameters.
func DefaultConfig() Config {
	return Config{
		DefaultConfidence: 0.7,
		Step:              0.2,
		Floor:             0.5,
		StalenessWindow:   30 * 24 * time.Hour,
		Weights:           retrieval.Weights{Lexical: 0.4, Semantic: 0.6},
	}
}

// Store is the belief service.
type Store struct {
	repo     store.BeliefRepo
	embedder embedding.Embedder
	lexical  retrieval.Scorer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLexicalScorer replaces the default BM25 scorer.
func WithLexicalScorer(sc retrieval.Scorer) Option {
	return func(s *Store) { s.lexical = sc }
}

// New creates a belief store.
func New(repo store.BeliefRepo, emb embedding.Embedder, cfg Config, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		repo:     repo,
		embedder: emb,
		lexical:  retrieval.DefaultBM25(),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UpsertInput describes a new belief. A nil Confidence selects the
// configured default.
type UpsertInput struct {
	Text       string
	Category   models.Category
	Stability  models.Stability
	Confidence *float64
}

// Upsert stores a new belief and returns it. If an active belief with the
// same normalised text and category already exists, it is touched and
// returned instead and created is false. The embedding is computed before
// anything is written; if it fails nothing is persisted.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (b *models.Belief, created bool, err error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, false, apperr.New(apperr.ErrInvalidArgument, "belief.Upsert", errors.New("text is required"))
	}
	if !in.Category.Valid() {
		return nil, false, apperr.New(apperr.ErrInvalidArgument, "belief.Upsert", fmt.Errorf("unknown category %q", in.Category))
	}
	if in.Stability == "" {
		in.Stability = models.StabilityEvolving
	}
	if !in.Stability.Valid() {
		return nil, false, apperr.New(apperr.ErrInvalidArgument, "belief.Upsert", fmt.Errorf("unknown stability %q", in.Stability))
	}
	conf := s.cfg.DefaultConfidence
	if in.Confidence != nil {
		conf = *in.Confidence
		if conf < 0 || conf > 1 {
			return nil, false, apperr.New(apperr.ErrInvalidArgument, "belief.Upsert", fmt.Errorf("confidence %v outside [0,1]", conf))
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	nb := &models.Belief{
		ID:             uuid.NewString(),
		Text:           text,
		Category:       in.Category,
		Stability:      in.Stability,
		Confidence:     clampConfidence(conf),
		Embedding:      vec,
		EmbeddingModel: s.embedder.Model(),
		Status:         models.BeliefActive,
		CreatedAt:      now,
		LastTouched:    now,
	}
	b, created, err = s.repo.InsertOrTouchBelief(nb, retrieval.Normalize(text))
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug("belief: upsert", slog.String("id", b.ID), slog.Bool("created", created))
	return b, created, nil
}

// Confirm records supporting evidence and raises confidence toward 1.
func (s *Store) Confirm(_ context.Context, id string) (*models.Belief, error) {
	return s.adjust(id, "belief.Confirm", func(b *models.Belief) {
		b.ConfirmCount++
		b.Confidence += s.cfg.Step * (1 - b.Confidence)
	})
}

// Contradict records opposing evidence and lowers confidence toward 0.
func (s *Store) Contradict(_ context.Context, id string) (*models.Belief, error) {
	return s.adjust(id, "belief.Contradict", func(b *models.Belief) {
		b.ContradictCount++
		b.Confidence -= s.cfg.Step * b.Confidence
	})
}

func (s *Store) adjust(id, op string, fn func(*models.Belief)) (*models.Belief, error) {
	return s.repo.MutateBelief(id, func(b *models.Belief) error {
		if b.Status != models.BeliefActive {
			return apperr.New(apperr.ErrConflict, op, errors.New("belief is archived")).WithKey(id)
		}
		fn(b)
		b.Confidence = clampConfidence(b.Confidence)
		b.LastTouched = s.now().UTC()
		return nil
	})
}

// UpdateInput describes a change to an active belief. Nil fields are left
// as they are.
type UpdateInput struct {
	Text       *string
	Confidence *float64
}

// Update rewrites the text and/or confidence of an active belief. A new
// text is embedded again before anything is written; if that fails the
// belief is unchanged.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (*models.Belief, error) {
	const op = "belief.Update"
	if in.Text == nil && in.Confidence == nil {
		return nil, apperr.New(apperr.ErrInvalidArgument, op, errors.New("nothing to update")).WithKey(id)
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return nil, apperr.New(apperr.ErrInvalidArgument, op, fmt.Errorf("confidence %v outside [0,1]", *in.Confidence)).WithKey(id)
	}

	var text string
	var vec []float32
	if in.Text != nil {
		text = strings.TrimSpace(*in.Text)
		if text == "" {
			return nil, apperr.New(apperr.ErrInvalidArgument, op, errors.New("text is required")).WithKey(id)
		}
		var err error
		if vec, err = s.embedder.Embed(ctx, text); err != nil {
			return nil, err
		}
	}

	apply := func(b *models.Belief) error {
		if b.Status != models.BeliefActive {
			return apperr.New(apperr.ErrConflict, op, errors.New("belief is archived")).WithKey(id)
		}
		if in.Text != nil {
			b.Text = text
			b.Embedding = vec
			b.EmbeddingModel = s.embedder.Model()
		}
		if in.Confidence != nil {
			b.Confidence = clampConfidence(*in.Confidence)
		}
		b.LastTouched = s.now().UTC()
		return nil
	}
	var (
		b   *models.Belief
		err error
	)
	if in.Text != nil {
		b, err = s.repo.ReviseBelief(id, retrieval.Normalize(text), apply)
	} else {
		b, err = s.repo.MutateBelief(id, apply)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("belief: update", slog.String("id", id), slog.Bool("text", in.Text != nil))
	return b, nil
}

// Supersede archives the belief id in favour of the active belief
// supersededBy and records the link.
func (s *Store) Supersede(_ context.Context, id, supersededBy string) (*models.Belief, error) {
	const op = "belief.Supersede"
	if supersededBy == "" {
		return nil, apperr.New(apperr.ErrInvalidArgument, op, errors.New("superseded_by is required")).WithKey(id)
	}
	if supersededBy == id {
		return nil, apperr.New(apperr.ErrInvalidArgument, op, errors.New("a belief cannot supersede itself")).WithKey(id)
	}
	by, err := s.repo.GetBelief(supersededBy)
	if err != nil {
		return nil, err
	}
	if by.Status != models.BeliefActive {
		return nil, apperr.New(apperr.ErrConflict, op, fmt.Errorf("replacement %s is archived", supersededBy)).WithKey(id)
	}
	b, err := s.repo.MutateBelief(id, func(b *models.Belief) error {
		if b.Status != models.BeliefActive {
			return apperr.New(apperr.ErrConflict, op, errors.New("belief is archived")).WithKey(id)
		}
		now := s.now().UTC()
		b.Status = models.BeliefArchived
		b.ArchivedAt = &now
		b.SupersededBy = supersededBy
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("belief: superseded", slog.String("id", id), slog.String("by", supersededBy))
	return b, nil
}

// Result is a ranked belief.
type Result struct {
	Belief   models.Belief `json:"belief"`
	Score    float64       `json:"score"`
	Lexical  float64       `json:"lexical"`
	Semantic float64       `json:"semantic"`
}

// Search ranks active beliefs against query. When the query cannot be
// embedded the ranking falls back to the lexical score alone.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.ErrInvalidArgument, "belief.Search", errors.New("query is required"))
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	active, err := s.repo.ActiveBeliefs()
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return []Result{}, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("belief: query embedding failed, ranking lexically",
			slog.String("error", err.Error()))
		qvec = nil
	}

	model := s.embedder.Model()
	cands := make([]retrieval.Candidate, len(active))
	for i, b := range active {
		cands[i] = retrieval.Candidate{ID: b.ID, Text: b.Text, LastTouched: b.LastTouched}
		if b.EmbeddingModel == model {
			cands[i].Embedding = b.Embedding
		}
	}

	lexical, err := s.lexical.Score(ctx, query, cands)
	if err != nil {
		return nil, fmt.Errorf("belief: lexical scoring: %w", err)
	}
	hits := retrieval.Rank(lexical, qvec, cands, s.cfg.Weights, topK)
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{Belief: active[h.Index], Score: h.Score, Lexical: h.Lexical, Semantic: h.Semantic}
	}
	return out, nil
}

// ArchiveStale archives active beliefs whose confidence is below the floor
// and that have not been touched within the staleness window before now.
func (s *Store) ArchiveStale(_ context.Context, now time.Time) ([]string, error) {
	if now.IsZero() {
		now = s.now()
	}
	ids, err := s.repo.ArchiveStaleBeliefs(s.cfg.Floor, now.Add(-s.cfg.StalenessWindow), now)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.logger.Info("belief: archived stale", slog.Int("count", len(ids)))
	}
	return nonNil(ids), nil
}

// ArchiveSession archives every active session-scoped belief.
func (s *Store) ArchiveSession(_ context.Context) ([]string, error) {
	ids, err := s.repo.ArchiveSessionBeliefs(s.now())
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.logger.Info("belief: archived session beliefs", slog.Int("count", len(ids)))
	}
	return nonNil(ids), nil
}

// Get returns a belief by id.
func (s *Store) Get(_ context.Context, id string) (*models.Belief, error) {
	return s.repo.GetBelief(id)
}

// List returns beliefs matching f and the total match count.
func (s *Store) List(_ context.Context, f store.BeliefFilter) ([]models.Belief, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.New(apperr.ErrInvalidArgument, "belief.List", fmt.Errorf("unknown status %q", f.Status))
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, 0, apperr.New(apperr.ErrInvalidArgument, "belief.List", fmt.Errorf("unknown category %q", f.Category))
	}
	out, total, err := s.repo.ListBeliefs(f)
	if err != nil {
		return nil, 0, err
	}
	if out == nil {
		out = []models.Belief{}
	}
	return out, total, nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < MinConfidence:
		return MinConfidence
	case c > MaxConfidence:
		return MaxConfidence
	}
	return c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
