package api

import (
	"net/url"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cadence/internal/athleteservice"
	"github.com/starford/cadence/internal/belief"
	"github.com/starford/cadence/internal/ingest"
	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/store"
)

const maxPageSize = 500

// ---------- request DTOs ----------

// ImportRequest is the body of POST /api/imports. An empty directory scans
// the whole source root.
type ImportRequest struct {
	Directory string `json:"directory"`
}

// Validate implements validation.Validatable.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Directory, validation.Length(0, 1024)),
	)
}

// UpsertBeliefRequest is the body of POST /api/beliefs.
type UpsertBeliefRequest struct {
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Stability  string   `json:"stability,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Validate implements validation.Validatable.
func (r UpsertBeliefRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required, validation.Length(1, 2000)),
		validation.Field(&r.Category, validation.Required, validation.In(categoryValues()...)),
		validation.Field(&r.Stability, validation.In(
			string(models.StabilityStable), string(models.StabilityEvolving), string(models.StabilitySession))),
		validation.Field(&r.Confidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (r UpsertBeliefRequest) input() belief.UpsertInput {
	stability := models.Stability(r.Stability)
	if stability == "" {
		stability = models.StabilityEvolving
	}
	return belief.UpsertInput{
		Text:       r.Text,
		Category:   models.Category(r.Category),
		Stability:  stability,
		Confidence: r.Confidence,
	}
}

// UpdateBeliefRequest is the body of PATCH /api/beliefs/{id}. At least one
// field is required.
type UpdateBeliefRequest struct {
	Text       *string  `json:"text,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Validate implements validation.Validatable.
func (r UpdateBeliefRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required.When(r.Confidence == nil), validation.Length(1, 2000)),
		validation.Field(&r.Confidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (r UpdateBeliefRequest) input() belief.UpdateInput {
	return belief.UpdateInput{Text: r.Text, Confidence: r.Confidence}
}

// SupersedeBeliefRequest is the body of POST /api/beliefs/{id}/supersede.
type SupersedeBeliefRequest struct {
	SupersededBy string `json:"superseded_by"`
}

// Validate implements validation.Validatable.
func (r SupersedeBeliefRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SupersededBy, validation.Required, validation.Length(1, 128)),
	)
}

// ArchiveStaleRequest is the optional body of POST /api/beliefs/archive-stale.
type ArchiveStaleRequest struct {
	Now *time.Time `json:"now,omitempty"`
}

// Validate implements validation.Validatable.
func (r ArchiveStaleRequest) Validate() error { return nil }

// activitiesParams is the query string of GET /api/activities.
type activitiesParams struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Sport   string `json:"sport"`
	Samples string `json:"samples"`
	Limit   string `json:"limit"`
}

func (p activitiesParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.From, validation.Date(time.RFC3339)),
		validation.Field(&p.To, validation.Date(time.RFC3339)),
		validation.Field(&p.Sport, validation.In(sportValues()...)),
		validation.Field(&p.Samples, validation.In("true", "false", "1", "0")),
		validation.Field(&p.Limit, validation.By(intInRange(1, maxPageSize))),
	)
}

func parseActivitiesQuery(q url.Values) (athleteservice.ActivityQuery, error) {
	p := activitiesParams{
		From:    q.Get("from"),
		To:      q.Get("to"),
		Sport:   q.Get("sport"),
		Samples: q.Get("samples"),
		Limit:   q.Get("limit"),
	}
	if err := p.Validate(); err != nil {
		return athleteservice.ActivityQuery{}, err
	}
	out := athleteservice.ActivityQuery{
		Sport:       models.Sport(p.Sport),
		WithSamples: p.Samples == "true" || p.Samples == "1",
		Limit:       atoiOr(p.Limit, 0),
	}
	out.From, _ = time.Parse(time.RFC3339, p.From)
	out.To, _ = time.Parse(time.RFC3339, p.To)
	return out, nil
}

// pageParams is the shared limit/offset query pair.
type pageParams struct {
	Limit  string `json:"limit"`
	Offset string `json:"offset"`
}

func (p pageParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Limit, validation.By(intInRange(1, maxPageSize))),
		validation.Field(&p.Offset, validation.By(intInRange(0, 1<<31-1))),
	)
}

func parsePage(q url.Values) (limit, offset int, err error) {
	p := pageParams{Limit: q.Get("limit"), Offset: q.Get("offset")}
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	return atoiOr(p.Limit, 50), atoiOr(p.Offset, 0), nil
}

func parseLedgerFilter(q url.Values) (store.LedgerFilter, error) {
	limit, offset, err := parsePage(q)
	if err != nil {
		return store.LedgerFilter{}, err
	}
	return store.LedgerFilter{Status: models.LedgerStatus(q.Get("status")), Limit: limit, Offset: offset}, nil
}

func parseBeliefFilter(q url.Values) (store.BeliefFilter, error) {
	limit, offset, err := parsePage(q)
	if err != nil {
		return store.BeliefFilter{}, err
	}
	return store.BeliefFilter{
		Status:   models.BeliefStatus(q.Get("status")),
		Category: models.Category(q.Get("category")),
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// searchParams is the query string of GET /api/beliefs/search.
type searchParams struct {
	Query string `json:"q"`
	TopK  string `json:"top_k"`
}

func (p searchParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Query, validation.Required),
		validation.Field(&p.TopK, validation.By(intInRange(1, 100))),
	)
}

func intInRange(lo, hi int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return validation.NewError("validation_not_int", "must be an integer")
		}
		if n < lo || n > hi {
			return validation.NewError("validation_out_of_range",
				"must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		}
		return nil
	}
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func categoryValues() []any {
	out := make([]any, len(models.Categories))
	for i, c := range models.Categories {
		out[i] = string(c)
	}
	return out
}

func sportValues() []any {
	out := make([]any, len(models.Sports))
	for i, s := range models.Sports {
		out[i] = string(s)
	}
	return out
}

// ---------- response DTOs ----------

// ActivityListResponse is the body of GET /api/activities.
type ActivityListResponse struct {
	Activities []models.Activity `json:"activities" validate:"required"`
	Count      int               `json:"count"      validate:"required"`
}

// LedgerListResponse is the body of GET /api/ledger.
type LedgerListResponse struct {
	Entries []models.LedgerEntry `json:"entries" validate:"required"`
	Total   int                  `json:"total"   validate:"required"`
}

// AuditListResponse is the body of GET /api/audit.
type AuditListResponse struct {
	Entries []models.AuditEntry `json:"entries" validate:"required"`
}

// BeliefListResponse is the body of GET /api/beliefs.
type BeliefListResponse struct {
	Beliefs []models.Belief `json:"beliefs" validate:"required"`
	Total   int             `json:"total"   validate:"required"`
}

// BeliefSearchResponse is the body of GET /api/beliefs/search.
type BeliefSearchResponse struct {
	Results []belief.Result `json:"results" validate:"required"`
}

// UpsertBeliefResponse is the body of POST /api/beliefs.
type UpsertBeliefResponse struct {
	Belief  *models.Belief `json:"belief"  validate:"required"`
	Created bool           `json:"created"`
}

// ArchiveResponse lists the ids a bulk archive touched.
type ArchiveResponse struct {
	Archived []string `json:"archived" validate:"required"`
}

// RefreshResponse is the body of POST /api/summaries/refresh.
type RefreshResponse struct {
	Updated int `json:"updated"`
}

// UploadResponse is the body of POST /api/uploads.
type UploadResponse struct {
	Path   string            `json:"path"   validate:"required"`
	Result ingest.FileResult `json:"result" validate:"required"`
}
