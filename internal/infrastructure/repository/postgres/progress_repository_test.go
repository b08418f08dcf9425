package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

func TestProgressCreateJobInsertsIfAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewProgressRepository(db)
	mock.ExpectBegin()
	for _, qid := range []string{"Q1", "Q2"} {
		mock.ExpectExec("ON CONFLICT \\(job_id, question_id\\) DO NOTHING").
			WithArgs("job_1", "s1", qid, string(domain.ProgressPending)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := repo.CreateJob(context.Background(), "job_1", "s1", []string{"Q1", "Q2"}); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProgressMarkInProgressSetsStartedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewProgressRepository(db)
	mock.ExpectExec("SET status = \\$3, started_at = \\$4").
		WithArgs("job_1", "Q1", string(domain.ProgressInProgress), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkStatus(context.Background(), "job_1", "Q1", domain.ProgressInProgress, nil, ""); err != nil {
		t.Fatalf("MarkStatus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProgressMarkFailedStoresError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewProgressRepository(db)
	result := &domain.AnalysisResult{QuestionID: "Q1", Status: domain.StatusError, Error: "timeout"}
	mock.ExpectExec("SET status = \\$3, result = \\$4, error_message = \\$5, completed_at = \\$6").
		WithArgs("job_1", "Q1", string(domain.ProgressFailed), sqlmock.AnyArg(), "timeout", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkStatus(context.Background(), "job_1", "Q1", domain.ProgressFailed, result, "timeout"); err != nil {
		t.Fatalf("MarkStatus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProgressListCompletedDecodesResults(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewProgressRepository(db)
	rows := sqlmock.NewRows([]string{"question_id", "result"}).
		AddRow("Q1", []byte(`{"question_id":"Q1","status":"YES","confidence":0.9}`)).
		AddRow("Q2", []byte(`{"status":"N/A"}`))
	mock.ExpectQuery("FROM analysis_progress").
		WithArgs("job_1", string(domain.ProgressCompleted)).
		WillReturnRows(rows)

	results, err := repo.ListCompleted(context.Background(), "job_1")
	if err != nil {
		t.Fatalf("ListCompleted() error = %v", err)
	}
	if len(results) != 2 || results[0].Status != domain.StatusCompliant || results[1].QuestionID != "Q2" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
