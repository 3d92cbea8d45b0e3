// Package svctest assembles a complete athlete service over temporary
// storage for transport tests.
package svctest

import (
	"testing"

	"github.com/starford/cadence/internal/athleteservice"
	"github.com/starford/cadence/internal/belief"
	"github.com/starford/cadence/internal/embedding"
	"github.com/starford/cadence/internal/events"
	"github.com/starford/cadence/internal/horizon"
	"github.com/starford/cadence/internal/ingest"
	"github.com/starford/cadence/internal/metrics"
	"github.com/starford/cadence/internal/retrieval"
	"github.com/starford/cadence/internal/storage"
	"github.com/starford/cadence/internal/store"
	"github.com/starford/cadence/internal/testutil"
)

// Env is a wired service with handles to its parts.
type Env struct {
	Dir     string
	Source  storage.Provider
	DB      *store.DB
	Service *athleteservice.Service
}

// New builds an Env. pub may be nil.
func New(t *testing.T, pub events.Publisher) *Env {
	t.Helper()
	dir, src := testutil.TestSource(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()
	params := metrics.DefaultParams()
	if pub == nil {
		pub = events.Noop{}
	}

	engine := horizon.New(db, metrics.DefaultBaseline(), params, horizon.Config{}, logger)
	importer := ingest.New(src, db, logger,
		ingest.WithParams(params),
		ingest.WithPublisher(pub),
		ingest.WithInvalidator(engine))
	beliefs := belief.New(db, embedding.NewHash(0), belief.DefaultConfig(), logger,
		belief.WithLexicalScorer(db.BeliefScorer(retrieval.DefaultBM25())))
	svc := athleteservice.NewService(athleteservice.Deps{
		Source:    src,
		DB:        db,
		Importer:  importer,
		Horizon:   engine,
		Beliefs:   beliefs,
		Publisher: pub,
		Params:    params,
		Logger:    logger,
	})
	return &Env{Dir: dir, Source: src, DB: db, Service: svc}
}
