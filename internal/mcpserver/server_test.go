package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/cadence/internal/testutil"
	"github.com/starford/cadence/internal/testutil/svctest"
)

var monday = time.Date(2026, 3, 9, 6, 30, 0, 0, time.UTC)

func testServer(t *testing.T) (*Server, *svctest.Env) {
	t.Helper()
	env := svctest.New(t, nil)
	return New(env.Service, "test"), env
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "import_new_files":
		result, err = srv.importNewFiles(ctx, req)
	case "get_activities":
		result, err = srv.getActivities(ctx, req)
	case "get_metrics":
		result, err = srv.getMetrics(ctx, req)
	case "get_context":
		result, err = srv.getContext(ctx, req)
	case "get_threshold_pace":
		result, err = srv.getThresholdPace(ctx, req)
	case "belief_search":
		result, err = srv.beliefSearch(ctx, req)
	case "belief_update":
		result, err = srv.beliefUpdate(ctx, req)
	case "belief_supersede":
		result, err = srv.beliefSupersede(ctx, req)
	case "belief_upsert":
		result, err = srv.beliefUpsert(ctx, req)
	case "belief_confirm":
		result, err = srv.beliefConfirm(ctx, req)
	case "belief_contradict":
		result, err = srv.beliefContradict(ctx, req)
	case "belief_archive_stale":
		result, err = srv.beliefArchiveStale(ctx, req)
	case "upload_activity":
		result, err = srv.uploadActivity(ctx, req)
	case "get_belief_guide":
		result, err = srv.getBeliefGuide(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func resultJSON(t *testing.T, r *mcp.CallToolResult, v any) {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), v); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
}

func dataURI(data []byte) string {
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data)
}

func TestImportNewFiles(t *testing.T) {
	srv, env := testServer(t)
	if err := env.Source.Write("2026/run.fit", testutil.Run(monday, 30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := env.Source.Write("2026/bad.fit", []byte("not a fit file at all")); err != nil {
		t.Fatal(err)
	}

	var rep struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
		Failed   []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"failed"`
	}
	resultJSON(t, callTool(t, srv, "import_new_files", map[string]interface{}{}), &rep)
	if rep.Imported != 1 || len(rep.Failed) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Failed[0].Path != "2026/bad.fit" || rep.Failed[0].Kind != "malformed_input" {
		t.Errorf("failed = %+v", rep.Failed[0])
	}

	resultJSON(t, callTool(t, srv, "import_new_files", map[string]interface{}{"directory": "2026"}), &rep)
	if rep.Imported != 0 || rep.Skipped != 2 {
		t.Errorf("second report = %+v", rep)
	}
}

func TestUploadAndQueryActivity(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "upload_activity", map[string]interface{}{
		"url":      dataURI(testutil.Run(monday, 30*time.Minute)),
		"filename": "../morning run",
	})
	var up struct {
		Path   string `json:"path"`
		Result struct {
			Outcome    string `json:"outcome"`
			ActivityID string `json:"activity_id"`
		} `json:"result"`
	}
	resultJSON(t, r, &up)
	if up.Path != "uploads/morning_run.fit" {
		t.Errorf("path = %q", up.Path)
	}
	if up.Result.Outcome != "imported" || up.Result.ActivityID == "" {
		t.Fatalf("result = %+v", up.Result)
	}

	var acts []struct {
		ID    string `json:"id"`
		Sport string `json:"sport"`
	}
	resultJSON(t, callTool(t, srv, "get_activities", map[string]interface{}{"sport": "running"}), &acts)
	if len(acts) != 1 || acts[0].ID != up.Result.ActivityID {
		t.Fatalf("activities = %+v", acts)
	}

	var m struct {
		Load struct {
			Value *float64 `json:"value"`
		} `json:"training_load"`
	}
	resultJSON(t, callTool(t, srv, "get_metrics", map[string]interface{}{"activity_id": acts[0].ID}), &m)
	if m.Load.Value == nil {
		t.Error("training load undetermined")
	}

	var c struct {
		SevenDay struct {
			Sessions int `json:"sessions"`
		} `json:"seven_day"`
	}
	at := monday.Add(2 * time.Hour).Format(time.RFC3339)
	resultJSON(t, callTool(t, srv, "get_context", map[string]interface{}{"at": at}), &c)
	if c.SevenDay.Sessions != 1 {
		t.Errorf("seven day sessions = %d, want 1", c.SevenDay.Sessions)
	}
}

func TestUploadActivityRejects(t *testing.T) {
	srv, _ := testServer(t)

	cases := map[string]string{
		"mime":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.Run(monday, time.Minute)),
		"header":   dataURI([]byte("this is plainly not a recording")),
		"loopback": "http://127.0.0.1/run.fit",
		"scheme":   "ftp://example.com/run.fit",
		"encoding": "data:application/octet-stream,raw",
	}
	for name, u := range cases {
		t.Run(name, func(t *testing.T) {
			r := callTool(t, srv, "upload_activity", map[string]interface{}{"url": u})
			if !r.IsError {
				t.Errorf("expected error, got %s", resultText(r))
			}
		})
	}
}

func TestToolErrors(t *testing.T) {
	srv, _ := testServer(t)

	cases := []struct {
		tool string
		args map[string]interface{}
	}{
		{"get_metrics", map[string]interface{}{"activity_id": "act_missing"}},
		{"get_metrics", map[string]interface{}{}},
		{"get_activities", map[string]interface{}{"from": "last week"}},
		{"get_activities", map[string]interface{}{"sport": "curling"}},
		{"get_context", map[string]interface{}{"at": "tomorrow"}},
		{"belief_upsert", map[string]interface{}{"text": "x", "category": "astrology"}},
		{"belief_upsert", map[string]interface{}{"text": "x", "category": "fitness", "stability": "forever"}},
		{"belief_upsert", map[string]interface{}{"text": "x", "category": "fitness", "confidence": 2.0}},
		{"belief_confirm", map[string]interface{}{"id": "bel_missing"}},
		{"belief_search", map[string]interface{}{}},
		{"belief_update", map[string]interface{}{"id": "bel_missing", "text": "x"}},
		{"belief_update", map[string]interface{}{}},
		{"belief_supersede", map[string]interface{}{"id": "bel_missing"}},
		{"get_threshold_pace", map[string]interface{}{}},
		{"get_threshold_pace", map[string]interface{}{"at": "soon"}},
	}
	for _, tc := range cases {
		r := callTool(t, srv, tc.tool, tc.args)
		if !r.IsError {
			t.Errorf("%s %v: expected error, got %s", tc.tool, tc.args, resultText(r))
		}
	}
}

func TestBeliefTools(t *testing.T) {
	srv, _ := testServer(t)

	var up struct {
		Belief struct {
			ID         string  `json:"id"`
			Confidence float64 `json:"confidence"`
			Stability  string  `json:"stability"`
		} `json:"belief"`
		Created bool `json:"created"`
	}
	resultJSON(t, callTool(t, srv, "belief_upsert", map[string]interface{}{
		"text":       "Knee pain on steep descents",
		"category":   "injury",
		"confidence": 0.6,
	}), &up)
	if !up.Created || up.Belief.Confidence != 0.6 || up.Belief.Stability != "evolving" {
		t.Fatalf("upsert = %+v", up)
	}
	id := up.Belief.ID

	var b struct {
		Confidence      float64 `json:"confidence"`
		ConfirmCount    int     `json:"confirm_count"`
		ContradictCount int     `json:"contradict_count"`
	}
	resultJSON(t, callTool(t, srv, "belief_confirm", map[string]interface{}{"id": id}), &b)
	if b.Confidence <= 0.6 || b.ConfirmCount != 1 {
		t.Errorf("confirm = %+v", b)
	}
	prev := b.Confidence
	resultJSON(t, callTool(t, srv, "belief_contradict", map[string]interface{}{"id": id}), &b)
	if b.Confidence >= prev || b.ContradictCount != 1 {
		t.Errorf("contradict = %+v", b)
	}

	var hits []struct {
		Belief struct {
			ID string `json:"id"`
		} `json:"belief"`
		Score float64 `json:"score"`
	}
	resultJSON(t, callTool(t, srv, "belief_search", map[string]interface{}{"query": "knee descents", "top_k": 3}), &hits)
	if len(hits) != 1 || hits[0].Belief.ID != id || hits[0].Score <= 0 {
		t.Errorf("search = %+v", hits)
	}

	var arch struct {
		Archived []string `json:"archived"`
	}
	resultJSON(t, callTool(t, srv, "belief_archive_stale", map[string]interface{}{}), &arch)
	if len(arch.Archived) != 0 {
		t.Errorf("archived = %v", arch.Archived)
	}
}

func TestBeliefGuide(t *testing.T) {
	srv, _ := testServer(t)

	text := resultText(callTool(t, srv, "get_belief_guide", map[string]interface{}{}))
	if !strings.Contains(text, "belief_confirm") {
		t.Error("guide does not mention belief_confirm")
	}

	contents, err := srv.readGuideResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != guideURI || tc.Text != BeliefGuide {
		t.Errorf("resource = %+v", contents[0])
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"run.fit":          "run.fit",
		"RUN.FIT":          "RUN.FIT",
		"../../etc/passwd": "passwd.fit",
		"long run #3.fit":  "long_run__3.fit",
		"track.gpx":        "track.gpx.fit",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilenameFromURL(t *testing.T) {
	if got := filenameFromURL("https://example.com/files/ride.fit?x=1"); got != "ride.fit" {
		t.Errorf("got %q", got)
	}
	if got := filenameFromURL("data:application/octet-stream;base64,AAAA"); !strings.HasSuffix(got, ".fit") {
		t.Errorf("data uri name = %q", got)
	}
}

func TestBeliefUpdateAndSupersedeTools(t *testing.T) {
	srv, _ := testServer(t)

	var up struct {
		Belief struct {
			ID string `json:"id"`
		} `json:"belief"`
	}
	resultJSON(t, callTool(t, srv, "belief_upsert", map[string]interface{}{
		"text": "Runs 40km per week", "category": "history",
	}), &up)
	oldID := up.Belief.ID
	resultJSON(t, callTool(t, srv, "belief_upsert", map[string]interface{}{
		"text": "Runs 50km per week", "category": "history",
	}), &up)
	newID := up.Belief.ID

	var b struct {
		Text         string  `json:"text"`
		Confidence   float64 `json:"confidence"`
		Status       string  `json:"status"`
		SupersededBy string  `json:"superseded_by"`
	}
	resultJSON(t, callTool(t, srv, "belief_update", map[string]interface{}{
		"id": newID, "text": "Runs 55km per week", "confidence": 0.8,
	}), &b)
	if b.Text != "Runs 55km per week" || b.Confidence != 0.8 {
		t.Errorf("update = %+v", b)
	}

	resultJSON(t, callTool(t, srv, "belief_supersede", map[string]interface{}{
		"id": oldID, "superseded_by": newID,
	}), &b)
	if b.Status != "archived" || b.SupersededBy != newID {
		t.Errorf("supersede = %+v", b)
	}

	r := callTool(t, srv, "belief_update", map[string]interface{}{"id": oldID, "confidence": 0.9})
	if !r.IsError {
		t.Errorf("update of archived belief should fail, got %s", resultText(r))
	}
}
