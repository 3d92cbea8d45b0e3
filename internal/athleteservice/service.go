// Package athleteservice is the single entry point the transports (REST,
// MCP, CLI) use to reach ingestion, activities, metrics, horizons and
// beliefs.
package athleteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/belief"
	"github.com/starford/cadence/internal/events"
	"github.com/starford/cadence/internal/horizon"
	"github.com/starford/cadence/internal/ingest"
	"github.com/starford/cadence/internal/metrics"
	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/observability"
	"github.com/starford/cadence/internal/storage"
	"github.com/starford/cadence/internal/store"
)

// DB is the persistence surface the service needs.
type DB interface {
	store.ActivityStore
	store.Ledger
	store.AuditLog
}

// Deps wires a Service.
type Deps struct {
	Source    storage.Provider
	DB        DB
	Importer  *ingest.Importer
	Horizon   *horizon.Engine
	Beliefs   *belief.Store
	Publisher events.Publisher
	Params    metrics.Params
	Logger    *slog.Logger
}

// Service coordinates the core components.
type Service struct {
	src       storage.Provider
	db        DB
	importer  *ingest.Importer
	horizon   *horizon.Engine
	beliefs   *belief.Store
	publisher events.Publisher
	params    metrics.Params
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new athlete service.
func NewService(d Deps) *Service {
	if d.Publisher == nil {
		d.Publisher = events.Noop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		src:       d.Source,
		db:        d.DB,
		importer:  d.Importer,
		horizon:   d.Horizon,
		beliefs:   d.Beliefs,
		publisher: d.Publisher,
		params:    d.Params,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// ImportNewFiles imports every new or changed recording under dir, relative
// to the source root ("" for all of it).
func (s *Service) ImportNewFiles(ctx context.Context, dir string) (*ingest.Report, error) {
	return s.importer.ImportDir(ctx, dir)
}

// Upload stores a recording under the source root and imports it.
func (s *Service) Upload(ctx context.Context, path string, data []byte) (*ingest.FileResult, error) {
	if !s.src.Match(path) {
		return nil, apperr.New(apperr.ErrInvalidArgument, "athleteservice.Upload",
			fmt.Errorf("path %q is not a recording", path))
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.ErrInvalidArgument, "athleteservice.Upload", errors.New("empty upload"))
	}
	if err := s.src.Write(path, data); err != nil {
		return nil, err
	}
	res, err := s.importer.ImportFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ActivityQuery selects activities for GetActivities.
type ActivityQuery struct {
	From        time.Time
	To          time.Time
	Sport       models.Sport
	WithSamples bool
	Limit       int
}

// GetActivities returns activities ordered by start time.
func (s *Service) GetActivities(_ context.Context, q ActivityQuery) ([]models.Activity, error) {
	const op = "athleteservice.GetActivities"
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, apperr.New(apperr.ErrInvalidArgument, op, errors.New("range end is before its start"))
	}
	if q.Sport != "" && !q.Sport.Valid() {
		return nil, apperr.New(apperr.ErrInvalidArgument, op, fmt.Errorf("unknown sport %q", q.Sport))
	}
	acts, err := s.db.QueryActivities(store.ActivityFilter{
		From:        q.From,
		To:          q.To,
		Sport:       q.Sport,
		WithSamples: q.WithSamples,
		Limit:       q.Limit,
	})
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []models.Activity{}
	}
	return acts, nil
}

// GetActivity returns one activity with its samples.
func (s *Service) GetActivity(_ context.Context, id string) (*models.Activity, error) {
	return s.db.GetActivity(id)
}

// GetMetrics returns every metric for one activity.
func (s *Service) GetMetrics(ctx context.Context, id string) (*metrics.Result, error) {
	return s.horizon.Metrics(ctx, id)
}

// GetContext returns the horizon summaries for ref; a zero ref means now.
func (s *Service) GetContext(ctx context.Context, ref time.Time) (*horizon.Context, error) {
	if ref.IsZero() {
		ref = s.now()
	}
	return s.horizon.Context(ctx, ref.UTC())
}

// GetThresholdPace estimates threshold pace from the hard runs of the 28
// days up to ref; a zero ref means now.
func (s *Service) GetThresholdPace(ctx context.Context, ref time.Time) (*metrics.ThresholdEstimate, error) {
	if ref.IsZero() {
		ref = s.now()
	}
	return s.horizon.ThresholdPace(ctx, ref.UTC())
}

// RefreshSummaries recomputes stored summaries written by an older formula
// version and returns how many were updated.
func (s *Service) RefreshSummaries(ctx context.Context) (int, error) {
	ids, err := s.db.StaleSummaries(metrics.FormulaVersion)
	if err != nil {
		return 0, err
	}
	var n int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		a, err := s.db.GetActivity(id)
		if err != nil {
			return n, err
		}
		sum := metrics.Summarize(a, a.Summary, s.params)
		if err := s.db.UpdateSummary(id, sum, metrics.FormulaVersion); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.logger.Info("summaries refreshed", slog.Int("count", n), slog.Int("formula_version", metrics.FormulaVersion))
	}
	return n, nil
}

// ListLedger returns ledger entries and the total match count.
func (s *Service) ListLedger(_ context.Context, f store.LedgerFilter) ([]models.LedgerEntry, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.New(apperr.ErrInvalidArgument, "athleteservice.ListLedger", fmt.Errorf("unknown status %q", f.Status))
	}
	entries, total, err := s.db.ListLedger(f)
	if err != nil {
		return nil, 0, err
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, total, nil
}

// ListAudit returns the most recent write conflicts.
func (s *Service) ListAudit(_ context.Context, limit int) ([]models.AuditEntry, error) {
	out, err := s.db.ListAudit(limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.AuditEntry{}
	}
	return out, nil
}

// BeliefSearch ranks active beliefs against query.
func (s *Service) BeliefSearch(ctx context.Context, query string, topK int) ([]belief.Result, error) {
	res, err := s.beliefs.Search(ctx, query, topK)
	observability.RecordBeliefOp("search", err)
	return res, err
}

// BeliefUpsert creates a belief or touches its active duplicate.
func (s *Service) BeliefUpsert(ctx context.Context, in belief.UpsertInput) (*models.Belief, bool, error) {
	b, created, err := s.beliefs.Upsert(ctx, in)
	observability.RecordBeliefOp("upsert", err)
	if err != nil {
		return nil, false, err
	}
	s.publishBelief(ctx, b, "upsert")
	return b, created, nil
}

// BeliefConfirm raises the confidence of a belief.
func (s *Service) BeliefConfirm(ctx context.Context, id string) (*models.Belief, error) {
	b, err := s.beliefs.Confirm(ctx, id)
	observability.RecordBeliefOp("confirm", err)
	if err != nil {
		return nil, err
	}
	s.publishBelief(ctx, b, "confirm")
	return b, nil
}

// BeliefContradict lowers the confidence of a belief.
func (s *Service) BeliefContradict(ctx context.Context, id string) (*models.Belief, error) {
	b, err := s.beliefs.Contradict(ctx, id)
	observability.RecordBeliefOp("contradict", err)
	if err != nil {
		return nil, err
	}
	s.publishBelief(ctx, b, "contradict")
	return b, nil
}

// BeliefUpdate rewrites the text and/or confidence of an active belief.
func (s *Service) BeliefUpdate(ctx context.Context, id string, in belief.UpdateInput) (*models.Belief, error) {
	b, err := s.beliefs.Update(ctx, id, in)
	observability.RecordBeliefOp("update", err)
	if err != nil {
		return nil, err
	}
	s.publishBelief(ctx, b, "update")
	return b, nil
}

// BeliefSupersede archives a belief in favour of another one.
func (s *Service) BeliefSupersede(ctx context.Context, id, supersededBy string) (*models.Belief, error) {
	b, err := s.beliefs.Supersede(ctx, id, supersededBy)
	observability.RecordBeliefOp("supersede", err)
	if err != nil {
		return nil, err
	}
	s.publishArchived(ctx, []string{b.ID}, "superseded")
	return b, nil
}

// BeliefArchiveStale archives low-confidence beliefs untouched for the
// staleness window. A zero now means the current time.
func (s *Service) BeliefArchiveStale(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.beliefs.ArchiveStale(ctx, now)
	observability.RecordBeliefOp("archive_stale", err)
	if err != nil {
		return nil, err
	}
	s.publishArchived(ctx, ids, "stale")
	return ids, nil
}

// BeliefArchiveSession archives every session-scoped belief.
func (s *Service) BeliefArchiveSession(ctx context.Context) ([]string, error) {
	ids, err := s.beliefs.ArchiveSession(ctx)
	observability.RecordBeliefOp("archive_session", err)
	if err != nil {
		return nil, err
	}
	s.publishArchived(ctx, ids, "session")
	return ids, nil
}

// GetBelief returns one belief.
func (s *Service) GetBelief(ctx context.Context, id string) (*models.Belief, error) {
	return s.beliefs.Get(ctx, id)
}

// ListBeliefs returns beliefs matching f and the total match count.
func (s *Service) ListBeliefs(ctx context.Context, f store.BeliefFilter) ([]models.Belief, int, error) {
	return s.beliefs.List(ctx, f)
}

func (s *Service) publishBelief(ctx context.Context, b *models.Belief, op string) {
	ev := events.New(events.BeliefUpdated, b.ID, map[string]any{
		"op":         op,
		"category":   b.Category,
		"confidence": b.Confidence,
	})
	s.publish(ctx, ev)
}

func (s *Service) publishArchived(ctx context.Context, ids []string, reason string) {
	for _, id := range ids {
		ev := events.New(events.BeliefsArchived, id, map[string]string{"reason": reason})
		s.publish(ctx, ev)
	}
}

// publish sends ev. Drops from a full outbox are logged there.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	err := s.publisher.Publish(ctx, ev)
	if err != nil && !errors.Is(err, events.ErrOutboxFull) {
		s.logger.Warn("publish event failed",
			slog.String("type", ev.Type),
			slog.String("key", ev.Key),
			slog.String("error", err.Error()))
	}
}
