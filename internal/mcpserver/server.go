// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Cadence tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cadence/internal/athleteservice"
	"github.com/starford/cadence/internal/belief"
	"github.com/starford/cadence/internal/models"
)

const guideURI = "cadence://belief-guide"

// Server wraps the MCP server with Cadence tools.
type Server struct {
	mcp *server.MCPServer
	svc *athleteservice.Service
}

// New creates a new MCP server with all Cadence tools registered.
func New(svc *athleteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Cadence",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("import_new_files",
		mcp.WithDescription("Import new or changed FIT recordings from the source directory. "+
			"Unchanged files are skipped; running it twice is harmless."),
		mcp.WithString("directory", mcp.Description("Optional subdirectory of the source root (empty for all)")),
	), s.importNewFiles)

	s.mcp.AddTool(mcp.NewTool("get_activities",
		mcp.WithDescription("List imported activities ordered by start time."),
		mcp.WithString("from", mcp.Description("RFC 3339 lower bound on start time")),
		mcp.WithString("to", mcp.Description("RFC 3339 upper bound on start time")),
		mcp.WithString("sport", mcp.Description("Sport filter"), mcp.Enum(sportNames()...)),
		mcp.WithBoolean("include_samples", mcp.Description("Include per-second samples (large)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of activities")),
	), s.getActivities)

	s.mcp.AddTool(mcp.NewTool("get_metrics",
		mcp.WithDescription("Compute heart-rate zones, training load, normalized pace and a VO2max "+
			"estimate for one activity. Missing data yields null values with a reason."),
		mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity id from get_activities")),
	), s.getMetrics)

	s.mcp.AddTool(mcp.NewTool("get_context",
		mcp.WithDescription("Summarise the latest session, the last 7 days and the last 28 days "+
			"with load trends. Call this at the start of a coaching conversation."),
		mcp.WithString("at", mcp.Description("RFC 3339 reference time (default now)")),
	), s.getContext)

	s.mcp.AddTool(mcp.NewTool("get_threshold_pace",
		mcp.WithDescription("Estimate threshold pace and pace zones from the hard runs of the last "+
			"28 days. Fails with insufficient data when fewer than three runs qualify."),
		mcp.WithString("at", mcp.Description("RFC 3339 reference time (default now)")),
	), s.getThresholdPace)

	s.mcp.AddTool(mcp.NewTool("belief_search",
		mcp.WithDescription("Rank active beliefs about the athlete against a query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("top_k", mcp.Description("Maximum results (default 5)")),
	), s.beliefSearch)

	s.mcp.AddTool(mcp.NewTool("belief_upsert",
		mcp.WithDescription("Record a belief about the athlete. An identical active belief is "+
			"touched instead of duplicated. Read the belief guide first."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The belief statement")),
		mcp.WithString("category", mcp.Required(), mcp.Enum(categoryNames()...)),
		mcp.WithString("stability", mcp.Enum("stable", "evolving", "session"),
			mcp.Description("How long the belief is expected to hold (default evolving)")),
		mcp.WithNumber("confidence", mcp.Description("Initial confidence in [0,1]")),
	), s.beliefUpsert)

	s.mcp.AddTool(mcp.NewTool("belief_confirm",
		mcp.WithDescription("Raise the confidence of a belief the athlete confirmed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Belief id")),
	), s.beliefConfirm)

	s.mcp.AddTool(mcp.NewTool("belief_contradict",
		mcp.WithDescription("Lower the confidence of a belief the athlete contradicted."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Belief id")),
	), s.beliefContradict)

	s.mcp.AddTool(mcp.NewTool("belief_update",
		mcp.WithDescription("Rewrite the text and/or confidence of an active belief. "+
			"A new text is embedded again."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Belief id")),
		mcp.WithString("text", mcp.Description("New belief statement")),
		mcp.WithNumber("confidence", mcp.Description("New confidence in [0,1]")),
	), s.beliefUpdate)

	s.mcp.AddTool(mcp.NewTool("belief_supersede",
		mcp.WithDescription("Archive a belief that another active belief replaces."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Belief id to archive")),
		mcp.WithString("superseded_by", mcp.Required(), mcp.Description("Id of the replacing belief")),
	), s.beliefSupersede)

	s.mcp.AddTool(mcp.NewTool("belief_archive_stale",
		mcp.WithDescription("Archive low-confidence beliefs that have not been touched recently."),
		mcp.WithString("now", mcp.Description("RFC 3339 reference time (default now)")),
	), s.beliefArchiveStale)

	s.mcp.AddTool(mcp.NewTool("upload_activity",
		mcp.WithDescription("Store a FIT recording from a base64 data URI or an http(s) URL and import it."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:application/octet-stream;base64,... or https://...")),
		mcp.WithString("filename", mcp.Description("Optional file name (a .fit extension is enforced)")),
	), s.uploadActivity)

	s.mcp.AddTool(mcp.NewTool("get_belief_guide",
		mcp.WithDescription("Returns the Cadence belief guide. Call this before recording beliefs."),
	), s.getBeliefGuide)

	// Resource: belief guide.
	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Belief Guide",
			mcp.WithResourceDescription("How beliefs are categorised, scored and archived."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func optionalTime(req mcp.CallToolRequest, key string) (time.Time, error) {
	v := req.GetString(key, "")
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: must be an RFC 3339 time", key)
	}
	return t, nil
}

func (s *Server) importNewFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.ImportNewFiles(ctx, req.GetString("directory", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) getActivities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := optionalTime(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := optionalTime(req, "to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	acts, err := s.svc.GetActivities(ctx, athleteservice.ActivityQuery{
		From:        from,
		To:          to,
		Sport:       models.Sport(req.GetString("sport", "")),
		WithSamples: req.GetBool("include_samples", false),
		Limit:       req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(acts)
}

func (s *Server) getMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("activity_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.GetMetrics(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	at, err := optionalTime(req, "at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.GetContext(ctx, at)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) getThresholdPace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	at, err := optionalTime(req, "at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	est, err := s.svc.GetThresholdPace(ctx, at)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(est)
}

func (s *Server) beliefSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.BeliefSearch(ctx, query, req.GetInt("top_k", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) beliefUpsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawCategory, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := models.ParseCategory(rawCategory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stability, err := models.ParseStability(req.GetString("stability", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := belief.UpsertInput{Text: text, Category: category, Stability: stability}
	if _, ok := req.GetArguments()["confidence"]; ok {
		c := req.GetFloat("confidence", 0)
		if c < 0 || c > 1 {
			return mcp.NewToolResultError("confidence must be within [0,1]"), nil
		}
		in.Confidence = &c
	}

	b, created, err := s.svc.BeliefUpsert(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"belief": b, "created": created})
}

func (s *Server) beliefUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var in belief.UpdateInput
	args := req.GetArguments()
	if _, ok := args["text"]; ok {
		text := req.GetString("text", "")
		in.Text = &text
	}
	if _, ok := args["confidence"]; ok {
		c := req.GetFloat("confidence", 0)
		in.Confidence = &c
	}
	b, err := s.svc.BeliefUpdate(ctx, id, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) beliefSupersede(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	by, err := req.RequireString("superseded_by")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.BeliefSupersede(ctx, id, by)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) beliefConfirm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.BeliefConfirm(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) beliefContradict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.BeliefContradict(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) beliefArchiveStale(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now, err := optionalTime(req, "now")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := s.svc.BeliefArchiveStale(ctx, now)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"archived": ids})
}

func (s *Server) getBeliefGuide(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BeliefGuide), nil
}

func (s *Server) readGuideResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     BeliefGuide,
		},
	}, nil
}

func sportNames() []string {
	out := make([]string, len(models.Sports))
	for i, sp := range models.Sports {
		out[i] = string(sp)
	}
	return out
}

func categoryNames() []string {
	out := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		out[i] = string(c)
	}
	return out
}
