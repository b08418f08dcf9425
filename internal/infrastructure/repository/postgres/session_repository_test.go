package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

func newSessionRepoWithMock(t *testing.T) (*SessionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewSessionRepository(db), mock, func() { _ = db.Close() }
}

var sessionColumns = []string{
	"id", "client_name", "framework", "status", "current_stage", "financial_statements_file", "financial_statements_filename",
	"notes_file", "notes_filename", "selected_standards", "total_standards", "total_questions", "extracted_metadata", "analysis_results",
	"compliance_score", "compliant_count", "non_compliant_count", "not_applicable_count", "chat_messages", "created_at", "updated_at",
}

func TestSessionGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newSessionRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, client_name, framework").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionGetByIDDecodesJSONColumns(t *testing.T) {
	repo, mock, done := newSessionRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(sessionColumns).AddRow(
		"s1", "Acme", "IFRS", string(domain.SessionCompleted), 7, "uploads/fs.pdf", "fs.pdf",
		"", "", []byte(`["IAS 1","IFRS 9"]`), 2, 10, []byte(`{"company_name":"Acme plc"}`),
		[]byte(`{"summary":{"total":1,"compliance_score":100},"results":[{"question_id":"Q1","status":"YES"}],"document_hash":"h1"}`),
		100, 1, 0, 0, []byte(`[{"role":"system","content":"hello","timestamp":"2026-01-01T00:00:00Z"}]`), now, now,
	)
	mock.ExpectQuery("SELECT id, client_name, framework").WithArgs("s1").WillReturnRows(rows)

	s, err := repo.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(s.SelectedStandards) != 2 || s.SelectedStandards[1] != "IFRS 9" {
		t.Fatalf("unexpected standards: %v", s.SelectedStandards)
	}
	if s.ExtractedMetadata.CompanyName() != "Acme plc" {
		t.Fatalf("unexpected metadata: %+v", s.ExtractedMetadata)
	}
	if s.AnalysisResults == nil || s.AnalysisResults.DocumentHash != "h1" || s.AnalysisResults.Results[0].Status != domain.StatusCompliant {
		t.Fatalf("unexpected analysis: %+v", s.AnalysisResults)
	}
	if len(s.ChatMessages) != 1 || s.ChatMessages[0].Role != domain.RoleSystem {
		t.Fatalf("unexpected messages: %+v", s.ChatMessages)
	}
}

func TestSessionGetByIDHandlesNullJSON(t *testing.T) {
	repo, mock, done := newSessionRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(sessionColumns).AddRow(
		"s1", "", "IFRS", string(domain.SessionStandardsSelection), 1, "fs", "fs.pdf",
		"", "", []byte(`[]`), 0, 0, nil, nil, 0, 0, 0, 0, []byte(`[]`), now, now,
	)
	mock.ExpectQuery("SELECT id, client_name, framework").WithArgs("s1").WillReturnRows(rows)

	s, err := repo.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if s.AnalysisResults != nil || s.ExtractedMetadata != nil {
		t.Fatalf("expected empty optional fields: %+v", s)
	}
	if s.SelectedStandards == nil || s.ChatMessages == nil {
		t.Fatalf("slices must not be nil")
	}
}

func TestSessionUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newSessionRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE compliance_sessions").
		WithArgs("missing", string(domain.SessionAnalyzing), domain.SessionStageAnalyzing, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.SessionAnalyzing, domain.SessionStageAnalyzing)
	if !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionSaveAnalysisMarksCompleted(t *testing.T) {
	repo, mock, done := newSessionRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE compliance_sessions").
		WithArgs("s1", string(domain.SessionCompleted), domain.SessionStageCompleted, sqlmock.AnyArg(), 75, 3, 1, 2, 1, 6, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveAnalysis(context.Background(), "s1", domain.SessionAnalysis{
		ComplianceScore:    75,
		CompliantCount:     3,
		NonCompliantCount:  1,
		NotApplicableCount: 2,
		TotalStandards:     1,
		TotalQuestions:     6,
	})
	if err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionAppendMessageConcatenatesJSON(t *testing.T) {
	repo, mock, done := newSessionRepoWithMock(t)
	defer done()

	mock.ExpectExec(`SET chat_messages = chat_messages \|\| \$2::jsonb`).
		WithArgs("s1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendMessage(context.Background(), "s1", domain.ChatMessage{Role: domain.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionCreateInsertsRow(t *testing.T) {
	repo, mock, done := newSessionRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO compliance_sessions").
		WithArgs("s1", "Acme", "IFRS", string(domain.SessionStandardsSelection), 1, "fs", "fs.pdf", "", "",
			[]byte(`["IAS 1"]`), 1, 4, []byte(`[]`), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Session{
		ID:                      "s1",
		ClientName:              "Acme",
		Framework:               "IFRS",
		Status:                  domain.SessionStandardsSelection,
		CurrentStage:            1,
		FinancialStatementsFile: "fs",
		FinancialStatementsName: "fs.pdf",
		SelectedStandards:       []string{"IAS 1"},
		TotalStandards:          1,
		TotalQuestions:          4,
		CreatedAt:               now,
		UpdatedAt:               now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
