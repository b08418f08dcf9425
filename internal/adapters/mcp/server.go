package mcpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
)

const (
	serverName    = "compliance-analyzer"
	serverVersion = "1.0.0"
)

// Deps are the services exposed as tools. Analyzer and Sessions may be nil,
// in which case only the catalog tools are registered.
type Deps struct {
	Catalog  ports.QuestionCatalog
	Sessions ports.SessionService
	Analyzer ports.ComplianceAnalyzer
	Enqueuer ports.AnalysisEnqueuer
}

type Server struct {
	deps Deps
	mcp  *server.MCPServer
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps: deps,
		mcp:  server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}
	s.registerCatalogTools()
	if deps.Sessions != nil {
		s.registerSessionTools()
	}
	if deps.Analyzer != nil {
		s.registerAnalysisTools()
	}
	return s
}

// ServeStdio serves the tools over stdin/stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.Info("mcp_server_started", "transport", "stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) registerCatalogTools() {
	s.mcp.AddTool(mcp.NewTool("list_standards",
		mcp.WithDescription("List the standards in the compliance checklist catalog with their question counts."),
	), s.listStandards)

	s.mcp.AddTool(mcp.NewTool("get_standard",
		mcp.WithDescription("Get one standard with all of its checklist questions and decision trees."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Standard key or section name, e.g. IAS_1 or \"IAS 1\".")),
	), s.getStandard)

	s.mcp.AddTool(mcp.NewTool("search_questions",
		mcp.WithDescription("Search checklist questions by substring over question text and references."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Case-insensitive search text.")),
	), s.searchQuestions)

	s.mcp.AddTool(mcp.NewTool("catalog_summary",
		mcp.WithDescription("Totals of standards and questions per framework."),
	), s.catalogSummary)
}

func (s *Server) registerSessionTools() {
	s.mcp.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get an analysis session with its status, score and results."),
		mcp.WithString("session_id", mcp.Required()),
	), s.getSession)
}

func (s *Server) registerAnalysisTools() {
	s.mcp.AddTool(mcp.NewTool("suggest_standards",
		mcp.WithDescription("Suggest the catalog standards that apply to a session's documents."),
		mcp.WithString("session_id", mcp.Required()),
	), s.suggestStandards)

	s.mcp.AddTool(mcp.NewTool("run_analysis",
		mcp.WithDescription("Run the compliance analysis of a session and return the summary."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("job_id", mcp.Description("Resume a previous job by id.")),
	), s.runAnalysis)

	if s.deps.Enqueuer != nil {
		s.mcp.AddTool(mcp.NewTool("enqueue_analysis",
			mcp.WithDescription("Queue the compliance analysis of a session for a background worker."),
			mcp.WithString("session_id", mcp.Required()),
		), s.enqueueAnalysis)
	}
}

func (s *Server) listStandards(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"standards": s.deps.Catalog.ListStandards()})
}

func (s *Server) getStandard(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	standard, err := s.deps.Catalog.GetStandard(key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(standard)
}

func (s *Server) searchQuestions(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	items := s.deps.Catalog.SearchItems(query)
	return jsonResult(map[string]any{"query": query, "total": len(items), "items": items})
}

func (s *Server) catalogSummary(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.deps.Catalog.Summary())
}

func (s *Server) getSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session, err := s.deps.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(session)
}

func (s *Server) suggestStandards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	standards, err := s.deps.Analyzer.SuggestStandards(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"session_id": sessionID, "standards": standards})
}

func (s *Server) runAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outcome, err := s.deps.Analyzer.Run(ctx, domain.RunRequest{
		SessionID: sessionID,
		JobID:     request.GetString("job_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(outcome)
}

func (s *Server) enqueueAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	queued, err := s.deps.Enqueuer.Enqueue(ctx, domain.RunRequest{SessionID: sessionID})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(queued)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
