package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type catalogFake struct{}

func (catalogFake) ListStandards() []domain.StandardInfo {
	return []domain.StandardInfo{{Key: "IAS_1", Section: "IAS 1", ItemCount: 3}}
}

func (catalogFake) GetStandard(key string) (domain.Standard, error) {
	if key == "IAS_1" {
		return domain.Standard{Key: "IAS_1", Section: "IAS 1", Items: []domain.Question{{ID: "IAS1_1"}}}, nil
	}
	return domain.Standard{}, domain.WrapError(domain.ErrStandardNotFound, "get standard", errors.New(key))
}

func (catalogFake) ItemsForStandards([]string) []domain.Question { return nil }

func (catalogFake) SearchItems(query string) []domain.CatalogItem {
	return []domain.CatalogItem{{Standard: "IAS 1", Question: domain.Question{ID: "IAS1_1", Question: "Does the entity disclose " + query + "?"}}}
}

func (catalogFake) Summary() domain.CatalogSummary {
	return domain.CatalogSummary{TotalStandards: 1, TotalQuestions: 3}
}

func (catalogFake) Reload() error { return nil }

type analyzerFake struct {
	requests []domain.RunRequest
	err      error
}

func (f *analyzerFake) Run(_ context.Context, req domain.RunRequest) (domain.RunOutcome, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.RunOutcome{}, f.err
	}
	return domain.RunOutcome{SessionID: req.SessionID, JobID: "job_abc", ComplianceScore: 80}, nil
}

func (f *analyzerFake) RunStream(context.Context, domain.RunRequest) <-chan domain.Event {
	out := make(chan domain.Event)
	close(out)
	return out
}

func (f *analyzerFake) SuggestStandards(context.Context, string) ([]string, error) {
	return []string{"IFRS 16"}, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", c)
		return ""
	}
}

func TestSearchQuestionsReturnsItems(t *testing.T) {
	s := NewServer(Deps{Catalog: catalogFake{}})

	res, err := s.searchQuestions(context.Background(), callRequest(map[string]any{"query": "leases"}))
	if err != nil {
		t.Fatalf("searchQuestions() error = %v", err)
	}
	var payload struct {
		Total int                  `json:"total"`
		Items []domain.CatalogItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Total != 1 || !strings.Contains(payload.Items[0].Question.Question, "leases") {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSearchQuestionsRequiresQuery(t *testing.T) {
	s := NewServer(Deps{Catalog: catalogFake{}})
	res, err := s.searchQuestions(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("tool errors must be reported in the result, got %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result")
	}
}

func TestGetStandardUnknownIsToolError(t *testing.T) {
	s := NewServer(Deps{Catalog: catalogFake{}})
	res, _ := s.getStandard(context.Background(), callRequest(map[string]any{"key": "IFRS_99"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "standard not found") {
		t.Fatalf("expected standard not found error")
	}
}

func TestRunAnalysisPassesJobID(t *testing.T) {
	analyzer := &analyzerFake{}
	s := NewServer(Deps{Catalog: catalogFake{}, Analyzer: analyzer})

	res, err := s.runAnalysis(context.Background(), callRequest(map[string]any{"session_id": "s1", "job_id": "job_prev"}))
	if err != nil {
		t.Fatalf("runAnalysis() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if len(analyzer.requests) != 1 || analyzer.requests[0].JobID != "job_prev" {
		t.Fatalf("unexpected run requests: %+v", analyzer.requests)
	}
	if !strings.Contains(resultText(t, res), `"compliance_score": 80`) {
		t.Fatalf("unexpected outcome text: %s", resultText(t, res))
	}
}

func TestRunAnalysisFailureIsToolError(t *testing.T) {
	analyzer := &analyzerFake{err: domain.WrapError(domain.ErrAnalysisInProgress, "run", errors.New("busy"))}
	s := NewServer(Deps{Catalog: catalogFake{}, Analyzer: analyzer})

	res, err := s.runAnalysis(context.Background(), callRequest(map[string]any{"session_id": "s1"}))
	if err != nil {
		t.Fatalf("runAnalysis() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error result")
	}
}
