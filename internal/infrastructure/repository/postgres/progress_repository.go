package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// CreateJob inserts a pending row per question. Rows of a resumed job are left
// untouched.
func (r *ProgressRepository) CreateJob(ctx context.Context, jobID, sessionID string, questionIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin progress tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, qid := range questionIDs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO analysis_progress (job_id, session_id, question_id, status)
VALUES ($1,$2,$3,$4)
ON CONFLICT (job_id, question_id) DO NOTHING
`, jobID, sessionID, qid, string(domain.ProgressPending)); err != nil {
			return fmt.Errorf("insert progress row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit progress tx: %w", err)
	}
	return nil
}

func (r *ProgressRepository) MarkStatus(
	ctx context.Context,
	jobID, questionID string,
	status domain.ProgressStatus,
	result *domain.AnalysisResult,
	errMessage string,
) error {
	var resultJSON []byte
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal progress result: %w", err)
		}
		resultJSON = raw
	}

	now := time.Now().UTC()
	var err error
	if status == domain.ProgressInProgress {
		_, err = r.db.ExecContext(ctx, `
UPDATE analysis_progress
SET status = $3, started_at = $4
WHERE job_id = $1 AND question_id = $2
`, jobID, questionID, string(status), now)
	} else {
		_, err = r.db.ExecContext(ctx, `
UPDATE analysis_progress
SET status = $3, result = $4, error_message = $5, completed_at = $6
WHERE job_id = $1 AND question_id = $2
`, jobID, questionID, string(status), resultJSON, errMessage, now)
	}
	if err != nil {
		return fmt.Errorf("update progress status: %w", err)
	}
	return nil
}

func (r *ProgressRepository) ListCompleted(ctx context.Context, jobID string) ([]domain.AnalysisResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT question_id, result
FROM analysis_progress
WHERE job_id = $1 AND status = $2 AND result IS NOT NULL
ORDER BY question_id
`, jobID, string(domain.ProgressCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed progress: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AnalysisResult, 0)
	for rows.Next() {
		result, err := scanProgressResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress rows: %w", err)
	}
	return out, nil
}

func scanProgressResult(row rowScanner) (domain.AnalysisResult, error) {
	var questionID string
	var raw []byte
	if err := row.Scan(&questionID, &raw); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("scan progress row: %w", err)
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("unmarshal progress result %s: %w", questionID, err)
	}
	if result.QuestionID == "" {
		result.QuestionID = questionID
	}
	return result, nil
}
