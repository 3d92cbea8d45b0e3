package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/cadence/internal/athleteservice"
	"github.com/starford/cadence/internal/ingest"
	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/testutil"
	"github.com/starford/cadence/internal/testutil/svctest"
)

var monday = time.Date(2026, 3, 9, 6, 30, 0, 0, time.UTC)

// testEnv sets up a temp source, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*athleteservice.Service, http.Handler) {
	t.Helper()
	env := svctest.New(t, nil)
	router := NewRouter(env.Service, authToken != "", authToken, nil)
	return env.Service, router
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func uploadRequest(t *testing.T, filename, path string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if path != "" {
		if err := mw.WriteField("path", path); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func upload(t *testing.T, router http.Handler, filename string, data []byte) UploadResponse {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, filename, "", data))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[UploadResponse](t, w)
}

func TestUploadAndGetActivity(t *testing.T) {
	_, router := testEnv(t, "")

	up := upload(t, router, "run.fit", testutil.Run(monday, 30*time.Minute))
	if up.Path != "uploads/run.fit" {
		t.Errorf("path = %q", up.Path)
	}
	if up.Result.Outcome != ingest.OutcomeImported || up.Result.ActivityID == "" {
		t.Fatalf("result = %+v", up.Result)
	}

	w := do(t, router, http.MethodGet, "/activities/"+up.Result.ActivityID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	a := decode[models.Activity](t, w)
	if a.Sport != models.SportRunning {
		t.Errorf("sport = %q", a.Sport)
	}
	if a.DurationSeconds != 1800 {
		t.Errorf("duration = %v, want 1800", a.DurationSeconds)
	}
	if len(a.Samples) == 0 {
		t.Error("expected samples")
	}

	// Same bytes again are skipped.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "run.fit", "", testutil.Run(monday, 30*time.Minute)))
	if w.Code != http.StatusOK {
		t.Fatalf("second upload status = %d", w.Code)
	}
	if got := decode[UploadResponse](t, w).Result.Outcome; got != ingest.OutcomeSkipped {
		t.Errorf("second outcome = %q, want skipped", got)
	}
}

func TestUploadExplicitPath(t *testing.T) {
	_, router := testEnv(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "ignored.fit", "2026/03/morning.fit", testutil.Run(monday, 20*time.Minute)))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[UploadResponse](t, w).Path; got != "2026/03/morning.fit" {
		t.Errorf("path = %q", got)
	}
}

func TestUploadRejected(t *testing.T) {
	_, router := testEnv(t, "")
	data := testutil.Run(monday, 10*time.Minute)

	cases := []struct {
		name, filename, path string
	}{
		{"traversal nested path", "x.fit", "a/../../x.fit"},
		{"traversal path", "x.fit", "../outside.fit"},
		{"not a recording", "notes.txt", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, uploadRequest(t, tc.filename, tc.path, data))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/uploads", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-multipart status = %d, want 400", w.Code)
	}
}

func TestUploadCorruptIsReported(t *testing.T) {
	_, router := testEnv(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "bad.fit", "", testutil.Corrupt(testutil.Run(monday, 10*time.Minute))))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[UploadResponse](t, w).Result
	if res.Outcome != ingest.OutcomeFailed || res.Kind != "malformed_input" {
		t.Errorf("result = %+v", res)
	}

	w = do(t, router, http.MethodGet, "/ledger?status=failed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ledger status = %d", w.Code)
	}
	if got := decode[LedgerListResponse](t, w).Total; got != 1 {
		t.Errorf("failed entries = %d, want 1", got)
	}
}

func TestImportEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/imports", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	rep := decode[ingest.Report](t, w)
	if rep.Imported != 0 || len(rep.Failed) != 0 {
		t.Errorf("report = %+v", rep)
	}

	upload(t, router, "a.fit", testutil.Run(monday, 10*time.Minute))
	w = do(t, router, http.MethodPost, "/imports", ImportRequest{Directory: "uploads"})
	if w.Code != http.StatusOK {
		t.Fatalf("subdirectory status = %d, body = %s", w.Code, w.Body.String())
	}
	if rep := decode[ingest.Report](t, w); rep.Skipped != 1 {
		t.Errorf("subdirectory report = %+v", rep)
	}

	w = do(t, router, http.MethodPost, "/imports", ImportRequest{Directory: "2019"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing directory status = %d, want 404", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/imports", strings.NewReader("{"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", w.Code)
	}
}

func TestListActivities(t *testing.T) {
	_, router := testEnv(t, "")
	for i, name := range []string{"a.fit", "b.fit", "c.fit"} {
		upload(t, router, name, testutil.Run(monday.AddDate(0, 0, i), 30*time.Minute))
	}

	w := do(t, router, http.MethodGet, "/activities?sport=running", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := decode[ActivityListResponse](t, w)
	if list.Count != 3 {
		t.Fatalf("count = %d, want 3", list.Count)
	}
	if len(list.Activities[0].Samples) != 0 {
		t.Error("samples should be omitted by default")
	}

	from := monday.Add(12 * time.Hour).Format(time.RFC3339)
	w = do(t, router, http.MethodGet, "/activities?from="+from+"&samples=true&limit=1", nil)
	list = decode[ActivityListResponse](t, w)
	if list.Count != 1 {
		t.Fatalf("ranged count = %d, want 1", list.Count)
	}
	if len(list.Activities[0].Samples) == 0 {
		t.Error("samples requested but missing")
	}
}

func TestListActivitiesValidation(t *testing.T) {
	_, router := testEnv(t, "")

	for _, q := range []string{
		"sport=curling",
		"from=yesterday",
		"limit=0",
		"limit=abc",
		"from=2026-03-10T00:00:00Z&to=2026-03-01T00:00:00Z",
	} {
		w := do(t, router, http.MethodGet, "/activities?"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
			continue
		}
		if kind := decode[errResponse](t, w).Kind; kind != "invalid_argument" {
			t.Errorf("%s: kind = %q", q, kind)
		}
	}
}

func TestActivityNotFound(t *testing.T) {
	_, router := testEnv(t, "")

	for _, target := range []string{"/activities/act_missing", "/activities/act_missing/metrics"} {
		w := do(t, router, http.MethodGet, target, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, w.Code)
		}
	}
}

func TestMetricsAndContext(t *testing.T) {
	_, router := testEnv(t, "")
	var lastID string
	for i, minutes := range []int{30, 45, 60} {
		up := upload(t, router, string(rune('a'+i))+".fit", testutil.Run(monday.AddDate(0, 0, i), time.Duration(minutes)*time.Minute))
		lastID = up.Result.ActivityID
	}

	w := do(t, router, http.MethodGet, "/activities/"+lastID+"/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	var m struct {
		Load struct {
			Value *float64 `json:"value"`
		} `json:"training_load"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m.Load.Value == nil || *m.Load.Value <= 0 {
		t.Errorf("training load = %v", m.Load.Value)
	}

	at := monday.AddDate(0, 0, 3).Format(time.RFC3339)
	w = do(t, router, http.MethodGet, "/context?at="+at, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("context status = %d, body = %s", w.Code, w.Body.String())
	}
	var c struct {
		SevenDay struct {
			Sessions        int     `json:"sessions"`
			DurationSeconds float64 `json:"duration_s"`
		} `json:"seven_day"`
		SingleSession *struct {
			Sessions int `json:"sessions"`
		} `json:"single_session"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &c)
	if c.SevenDay.Sessions != 3 || c.SevenDay.DurationSeconds != 135*60 {
		t.Errorf("seven day = %+v", c.SevenDay)
	}
	if c.SingleSession == nil {
		t.Error("single session missing")
	}

	w = do(t, router, http.MethodGet, "/context?at=soon", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad at status = %d, want 400", w.Code)
	}
}

func TestBeliefLifecycle(t *testing.T) {
	_, router := testEnv(t, "")

	req := UpsertBeliefRequest{Text: "Prefers long runs on Sunday mornings", Category: "preference"}
	w := do(t, router, http.MethodPost, "/beliefs", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[UpsertBeliefResponse](t, w)
	if !created.Created || created.Belief.Confidence != 0.7 {
		t.Errorf("created = %+v", created.Belief)
	}
	id := created.Belief.ID

	// Duplicate text touches the existing belief.
	w = do(t, router, http.MethodPost, "/beliefs", req)
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d", w.Code)
	}
	if dup := decode[UpsertBeliefResponse](t, w); dup.Created || dup.Belief.ID != id {
		t.Errorf("duplicate = %+v", dup)
	}

	w = do(t, router, http.MethodPost, "/beliefs/"+id+"/confirm", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d", w.Code)
	}
	if b := decode[models.Belief](t, w); b.Confidence <= 0.7 || b.ConfirmCount != 1 {
		t.Errorf("confirmed = %+v", b)
	}

	w = do(t, router, http.MethodPost, "/beliefs/"+id+"/contradict", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("contradict status = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/beliefs/search?q=sunday+long+run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	res := decode[BeliefSearchResponse](t, w)
	if len(res.Results) != 1 || res.Results[0].Belief.ID != id {
		t.Errorf("search = %+v", res.Results)
	}

	w = do(t, router, http.MethodGet, "/beliefs/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/beliefs?status=active&category=preference", nil)
	if list := decode[BeliefListResponse](t, w); list.Total != 1 {
		t.Errorf("list total = %d, want 1", list.Total)
	}
}

func TestBeliefValidation(t *testing.T) {
	_, router := testEnv(t, "")

	bad := []UpsertBeliefRequest{
		{Text: "", Category: "preference"},
		{Text: "x", Category: "astrology"},
		{Text: "x", Category: "injury", Stability: "forever"},
		{Text: "x", Category: "injury", Confidence: ptr(1.5)},
	}
	for _, req := range bad {
		w := do(t, router, http.MethodPost, "/beliefs", req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%+v: status = %d, want 400", req, w.Code)
		}
	}

	w := do(t, router, http.MethodPost, "/beliefs/bel_missing/confirm", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("confirm missing = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodGet, "/beliefs/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodGet, "/beliefs?status=deleted", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", w.Code)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/beliefs", UpsertBeliefRequest{
		Text: "Tired after the long flight", Category: "physical", Stability: "session",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	id := decode[UpsertBeliefResponse](t, w).Belief.ID

	w = do(t, router, http.MethodPost, "/beliefs/archive-session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive session status = %d", w.Code)
	}
	if got := decode[ArchiveResponse](t, w).Archived; len(got) != 1 || got[0] != id {
		t.Errorf("archived = %v", got)
	}

	// Archived beliefs no longer accept feedback.
	w = do(t, router, http.MethodPost, "/beliefs/"+id+"/confirm", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("confirm archived = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, "/beliefs/archive-stale", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive stale status = %d", w.Code)
	}
	if got := decode[ArchiveResponse](t, w).Archived; len(got) != 0 {
		t.Errorf("stale = %v", got)
	}

	now := time.Now().Add(24 * time.Hour)
	w = do(t, router, http.MethodPost, "/beliefs/archive-stale", ArchiveStaleRequest{Now: &now})
	if w.Code != http.StatusOK {
		t.Errorf("archive stale with now = %d", w.Code)
	}
}

func TestAuditAndRefresh(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/audit?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit status = %d", w.Code)
	}
	if got := decode[AuditListResponse](t, w).Entries; got == nil || len(got) != 0 {
		t.Errorf("audit = %v", got)
	}

	w = do(t, router, http.MethodPost, "/summaries/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}
	if got := decode[RefreshResponse](t, w).Updated; got != 0 {
		t.Errorf("updated = %d, want 0", got)
	}
}

func ptr(v float64) *float64 { return &v }

// --- Auth middleware tests ---

func TestAuthDisabledMode(t *testing.T) {
	_, router := testEnv(t, "")

	// Disabled mode: no auth header needed.
	w := do(t, router, http.MethodGet, "/activities", nil)
	if w.Code != http.StatusOK {
		t.Errorf("disabled mode: status = %d, want 200", w.Code)
	}
}

func TestAuthTokenMode_NoHeader(t *testing.T) {
	_, router := testEnv(t, "secret-token")

	w := do(t, router, http.MethodGet, "/activities", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("token mode no header: status = %d, want 401", w.Code)
	}
}

func TestAuthTokenMode_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/activities", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", w.Code)
	}
}

func TestAuthTokenMode_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/activities", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestAuthTokenMode_BasicScheme(t *testing.T) {
	_, router := testEnv(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/context", nil)
	req.Header.Set("Authorization", "Basic secret-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("basic scheme: status = %d, want 401", w.Code)
	}
}

// --- SSE auth tests ---

func sseRouter(t *testing.T, token string) http.Handler {
	t.Helper()
	env := svctest.New(t, nil)
	stub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return NewRouter(env.Service, token != "", token, stub)
}

func TestSSE_AuthRequired(t *testing.T) {
	router := sseRouter(t, "sse-secret")

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer sse-secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE valid token: status = %d, want 200", w.Code)
	}
}

func TestSSE_DisabledMode(t *testing.T) {
	router := sseRouter(t, "")

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusOK {
		t.Errorf("SSE disabled mode: status = %d, want 200", w.Code)
	}
}

func TestSSE_NotMountedWithoutHandler(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("SSE without handler: status = %d", w.Code)
	}
}

func createBelief(t *testing.T, router http.Handler, text string) models.Belief {
	t.Helper()
	w := do(t, router, http.MethodPost, "/beliefs", UpsertBeliefRequest{Text: text, Category: "scheduling"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return *decode[UpsertBeliefResponse](t, w).Belief
}

func TestUpdateAndSupersedeBelief(t *testing.T) {
	_, router := testEnv(t, "")
	old := createBelief(t, router, "Long run on Sunday")
	repl := createBelief(t, router, "Long run on Saturday")

	text := "Long run on Saturday at dawn"
	w := do(t, router, http.MethodPatch, "/beliefs/"+repl.ID, UpdateBeliefRequest{Text: &text})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	if b := decode[models.Belief](t, w); b.Text != text {
		t.Errorf("updated text = %q", b.Text)
	}

	w = do(t, router, http.MethodPatch, "/beliefs/"+repl.ID, UpdateBeliefRequest{Confidence: ptr(0.95)})
	if w.Code != http.StatusOK {
		t.Fatalf("confidence update status = %d", w.Code)
	}
	if b := decode[models.Belief](t, w); b.Confidence != 0.95 || b.Text != text {
		t.Errorf("updated = %+v", b)
	}

	w = do(t, router, http.MethodPost, "/beliefs/"+old.ID+"/supersede", SupersedeBeliefRequest{SupersededBy: repl.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("supersede status = %d, body = %s", w.Code, w.Body.String())
	}
	if b := decode[models.Belief](t, w); b.Status != models.BeliefArchived || b.SupersededBy != repl.ID {
		t.Errorf("superseded = %+v", b)
	}

	// An archived belief can be neither edited nor superseded again.
	w = do(t, router, http.MethodPatch, "/beliefs/"+old.ID, UpdateBeliefRequest{Text: &text})
	if w.Code != http.StatusConflict {
		t.Errorf("update archived = %d, want 409", w.Code)
	}
	w = do(t, router, http.MethodPost, "/beliefs/"+old.ID+"/supersede", SupersedeBeliefRequest{SupersededBy: repl.ID})
	if w.Code != http.StatusConflict {
		t.Errorf("supersede archived = %d, want 409", w.Code)
	}
}

func TestUpdateAndSupersedeValidation(t *testing.T) {
	_, router := testEnv(t, "")
	b := createBelief(t, router, "Long run on Sunday")

	w := do(t, router, http.MethodPatch, "/beliefs/"+b.ID, UpdateBeliefRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPatch, "/beliefs/"+b.ID, UpdateBeliefRequest{Confidence: ptr(2)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("confidence 2 = %d, want 400", w.Code)
	}
	text := "anything"
	w = do(t, router, http.MethodPatch, "/beliefs/bel_missing", UpdateBeliefRequest{Text: &text})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodPost, "/beliefs/"+b.ID+"/supersede", SupersedeBeliefRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("supersede without target = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPost, "/beliefs/"+b.ID+"/supersede", SupersedeBeliefRequest{SupersededBy: "bel_missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("supersede by missing = %d, want 404", w.Code)
	}
}

func TestThresholdPaceNeedsHardRuns(t *testing.T) {
	_, router := testEnv(t, "")
	upload(t, router, "easy.fit", testutil.Run(monday, 30*time.Minute))

	w := do(t, router, http.MethodGet, "/threshold-pace?at=2026-03-10T00:00:00Z", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", w.Code, w.Body.String())
	}
	if e := decode[errResponse](t, w); e.Kind != "insufficient_data" {
		t.Errorf("kind = %q", e.Kind)
	}

	w = do(t, router, http.MethodGet, "/threshold-pace?at=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad at = %d, want 400", w.Code)
	}
}
