package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cadence/internal/athleteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *athleteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Ingestion.
	r.Post("/imports", h.ImportFiles)
	r.Post("/uploads", h.Upload)
	r.Get("/ledger", h.ListLedger)
	r.Get("/audit", h.ListAudit)

	// Activities and metrics.
	r.Get("/activities", h.ListActivities)
	r.Get("/activities/{id}", h.GetActivity)
	r.Get("/activities/{id}/metrics", h.GetMetrics)
	r.Post("/summaries/refresh", h.RefreshSummaries)
	r.Get("/context", h.GetContext)
	r.Get("/threshold-pace", h.GetThresholdPace)

	// Beliefs.
	r.Get("/beliefs", h.ListBeliefs)
	r.Post("/beliefs", h.UpsertBelief)
	r.Get("/beliefs/search", h.SearchBeliefs)
	r.Post("/beliefs/archive-stale", h.ArchiveStale)
	r.Post("/beliefs/archive-session", h.ArchiveSession)
	r.Get("/beliefs/{id}", h.GetBelief)
	r.Patch("/beliefs/{id}", h.UpdateBelief)
	r.Post("/beliefs/{id}/supersede", h.SupersedeBelief)
	r.Post("/beliefs/{id}/confirm", h.ConfirmBelief)
	r.Post("/beliefs/{id}/contradict", h.ContradictBelief)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
