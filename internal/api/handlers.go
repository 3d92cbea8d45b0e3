package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cadence/internal/athleteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *athleteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *athleteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ImportFiles handles POST /api/imports.
//
//	@Summary		Import new and changed recordings from the source root
//	@Tags			imports
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	false	"Optional subdirectory"
//	@Success		200		{object}	ingest.Report
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/imports [post]
func (h *Handler) ImportFiles(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if r.ContentLength != 0 && !decodeOptional(w, r, &req) {
		return
	}
	rep, err := h.svc.ImportNewFiles(r.Context(), req.Directory)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListActivities handles GET /api/activities.
//
//	@Summary		List activities in a time range
//	@Tags			activities
//	@Produce		json
//	@Param			from	query		string	false	"RFC 3339 lower bound"
//	@Param			to		query		string	false	"RFC 3339 upper bound"
//	@Param			sport	query		string	false	"Sport filter"
//	@Param			samples	query		bool	false	"Include samples"
//	@Param			limit	query		int		false	"Maximum results"
//	@Success		200		{object}	ActivityListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities [get]
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	q, err := parseActivitiesQuery(r.URL.Query())
	if err != nil {
		writeError(w, "list activities", err)
		return
	}
	acts, err := h.svc.GetActivities(r.Context(), q)
	if err != nil {
		writeError(w, "list activities", err)
		return
	}
	writeJSON(w, http.StatusOK, ActivityListResponse{Activities: acts, Count: len(acts)})
}

// GetActivity handles GET /api/activities/{id}.
//
//	@Summary		Get one activity with its samples
//	@Tags			activities
//	@Produce		json
//	@Param			id	path		string	true	"Activity id"
//	@Success		200	{object}	models.Activity
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities/{id} [get]
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get activity", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetMetrics handles GET /api/activities/{id}/metrics.
//
//	@Summary		Compute training metrics for one activity
//	@Tags			activities
//	@Produce		json
//	@Param			id	path		string	true	"Activity id"
//	@Success		200	{object}	metrics.Result
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities/{id}/metrics [get]
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetMetrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetContext handles GET /api/context.
//
//	@Summary		Summarise the last session, week and four weeks
//	@Tags			context
//	@Produce		json
//	@Param			at	query		string	false	"RFC 3339 reference time, default now"
//	@Success		200	{object}	horizon.Context
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/context [get]
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	ref, ok := referenceTime(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetContext(r.Context(), ref)
	if err != nil {
		writeError(w, "get context", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetThresholdPace handles GET /api/threshold-pace.
//
//	@Summary		Estimate threshold pace from recent hard runs
//	@Tags			context
//	@Produce		json
//	@Param			at	query		string	false	"RFC 3339 reference time, default now"
//	@Success		200	{object}	metrics.ThresholdEstimate
//	@Failure		400	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/threshold-pace [get]
func (h *Handler) GetThresholdPace(w http.ResponseWriter, r *http.Request) {
	ref, ok := referenceTime(w, r)
	if !ok {
		return
	}
	est, err := h.svc.GetThresholdPace(r.Context(), ref)
	if err != nil {
		writeError(w, "get threshold pace", err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// referenceTime reads the optional "at" query parameter. The zero time
// means now.
func referenceTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	at := r.URL.Query().Get("at")
	if at == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "at: must be an RFC 3339 time", Kind: "invalid_argument"})
		return time.Time{}, false
	}
	return t, true
}

// SearchBeliefs handles GET /api/beliefs/search.
//
//	@Summary		Rank active beliefs against a query
//	@Tags			beliefs
//	@Produce		json
//	@Param			q		query		string	true	"Query text"
//	@Param			top_k	query		int		false	"Maximum results"
//	@Success		200		{object}	BeliefSearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs/search [get]
func (h *Handler) SearchBeliefs(w http.ResponseWriter, r *http.Request) {
	p := searchParams{Query: r.URL.Query().Get("q"), TopK: r.URL.Query().Get("top_k")}
	if err := p.Validate(); err != nil {
		writeError(w, "search beliefs", err)
		return
	}
	res, err := h.svc.BeliefSearch(r.Context(), p.Query, atoiOr(p.TopK, 0))
	if err != nil {
		writeError(w, "search beliefs", err)
		return
	}
	writeJSON(w, http.StatusOK, BeliefSearchResponse{Results: res})
}

// ListBeliefs handles GET /api/beliefs.
//
//	@Summary		List beliefs
//	@Tags			beliefs
//	@Produce		json
//	@Param			status		query		string	false	"active or archived"
//	@Param			category	query		string	false	"Category filter"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	BeliefListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs [get]
func (h *Handler) ListBeliefs(w http.ResponseWriter, r *http.Request) {
	f, err := parseBeliefFilter(r.URL.Query())
	if err != nil {
		writeError(w, "list beliefs", err)
		return
	}
	items, total, err := h.svc.ListBeliefs(r.Context(), f)
	if err != nil {
		writeError(w, "list beliefs", err)
		return
	}
	writeJSON(w, http.StatusOK, BeliefListResponse{Beliefs: items, Total: total})
}

// GetBelief handles GET /api/beliefs/{id}.
//
//	@Summary		Get one belief
//	@Tags			beliefs
//	@Produce		json
//	@Param			id	path		string	true	"Belief id"
//	@Success		200	{object}	models.Belief
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs/{id} [get]
func (h *Handler) GetBelief(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBelief(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get belief", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpsertBelief handles POST /api/beliefs.
//
//	@Summary		Record a belief, or touch its active duplicate
//	@Tags			beliefs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UpsertBeliefRequest	true	"Belief"
//	@Success		201		{object}	UpsertBeliefResponse
//	@Success		200		{object}	UpsertBeliefResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs [post]
func (h *Handler) UpsertBelief(w http.ResponseWriter, r *http.Request) {
	var req UpsertBeliefRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, created, err := h.svc.BeliefUpsert(r.Context(), req.input())
	if err != nil {
		writeError(w, "upsert belief", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, UpsertBeliefResponse{Belief: b, Created: created})
}

// ConfirmBelief handles POST /api/beliefs/{id}/confirm.
//
//	@Summary		Raise the confidence of a belief
//	@Tags			beliefs
//	@Produce		json
//	@Param			id	path		string	true	"Belief id"
//	@Success		200	{object}	models.Belief
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs/{id}/confirm [post]
func (h *Handler) ConfirmBelief(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.BeliefConfirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "confirm belief", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ContradictBelief handles POST /api/beliefs/{id}/contradict.
//
//	@Summary		Lower the confidence of a belief
//	@Tags			beliefs
//	@Produce		json
//	@Param			id	path		string	true	"Belief id"
//	@Success		200	{object}	models.Belief
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs/{id}/contradict [post]
func (h *Handler) ContradictBelief(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.BeliefContradict(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "contradict belief", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateBelief handles PATCH /api/beliefs/{id}.
//
//	@Summary		Rewrite the text or confidence of an active belief
//	@Tags			beliefs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Belief id"
//	@Param			body	body		UpdateBeliefRequest	true	"Changes"
//	@Success		200		{object}	models.Belief
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs/{id} [patch]
func (h *Handler) UpdateBelief(w http.ResponseWriter, r *http.Request) {
	var req UpdateBeliefRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.BeliefUpdate(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, "update belief", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// SupersedeBelief handles POST /api/beliefs/{id}/supersede.
//
//	@Summary		Archive a belief in favour of another
//	@Tags			beliefs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Belief id"
//	@Param			body	body		SupersedeBeliefRequest	true	"Replacement"
//	@Success		200		{object}	models.Belief
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/beliefs/{id}/supersede [post]
func (h *Handler) SupersedeBelief(w http.ResponseWriter, r *http.Request) {
	var req SupersedeBeliefRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.BeliefSupersede(r.Context(), chi.URLParam(r, "id"), req.SupersededBy)
	if err != nil {
		writeError(w, "supersede belief", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ArchiveStale handles POST /api/beliefs/archive-stale.
//
//	@Summary		Archive stale low-confidence beliefs
//	@Tags			beliefs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ArchiveStaleRequest	false	"Optional reference time"
//	@Success		200		{object}	ArchiveResponse
//	@Security		BearerAuth
//	@Router			/beliefs/archive-stale [post]
func (h *Handler) ArchiveStale(w http.ResponseWriter, r *http.Request) {
	var req ArchiveStaleRequest
	if r.ContentLength != 0 && !decodeOptional(w, r, &req) {
		return
	}
	var now time.Time
	if req.Now != nil {
		now = *req.Now
	}
	ids, err := h.svc.BeliefArchiveStale(r.Context(), now)
	if err != nil {
		writeError(w, "archive stale", err)
		return
	}
	writeJSON(w, http.StatusOK, ArchiveResponse{Archived: ids})
}

// ArchiveSession handles POST /api/beliefs/archive-session.
//
//	@Summary		Archive every session-scoped belief
//	@Tags			beliefs
//	@Produce		json
//	@Success		200	{object}	ArchiveResponse
//	@Security		BearerAuth
//	@Router			/beliefs/archive-session [post]
func (h *Handler) ArchiveSession(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.BeliefArchiveSession(r.Context())
	if err != nil {
		writeError(w, "archive session", err)
		return
	}
	writeJSON(w, http.StatusOK, ArchiveResponse{Archived: ids})
}

// ListLedger handles GET /api/ledger.
//
//	@Summary		List import ledger entries
//	@Tags			imports
//	@Produce		json
//	@Param			status	query		string	false	"imported, failed or unrecognized"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	LedgerListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ledger [get]
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	f, err := parseLedgerFilter(r.URL.Query())
	if err != nil {
		writeError(w, "list ledger", err)
		return
	}
	entries, total, err := h.svc.ListLedger(r.Context(), f)
	if err != nil {
		writeError(w, "list ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, LedgerListResponse{Entries: entries, Total: total})
}

// ListAudit handles GET /api/audit.
//
//	@Summary		List recent write conflicts
//	@Tags			imports
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum results"
//	@Success		200		{object}	AuditListResponse
//	@Security		BearerAuth
//	@Router			/audit [get]
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, _, err := parsePage(r.URL.Query())
	if err != nil {
		writeError(w, "list audit", err)
		return
	}
	entries, err := h.svc.ListAudit(r.Context(), limit)
	if err != nil {
		writeError(w, "list audit", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditListResponse{Entries: entries})
}

// RefreshSummaries handles POST /api/summaries/refresh.
//
//	@Summary		Recompute summaries written by an older formula version
//	@Tags			activities
//	@Produce		json
//	@Success		200	{object}	RefreshResponse
//	@Security		BearerAuth
//	@Router			/summaries/refresh [post]
func (h *Handler) RefreshSummaries(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RefreshSummaries(r.Context())
	if err != nil {
		writeError(w, "refresh summaries", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Updated: n})
}

// decodeOptional is decodeJSON for bodies that may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return false
	}
	if len(buf) == 0 {
		return true
	}
	return decodeBytes(w, buf, v)
}
