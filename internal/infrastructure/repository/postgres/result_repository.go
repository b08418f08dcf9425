package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// UpsertResults writes one row per (session, question), replacing earlier runs.
func (r *ResultRepository) UpsertResults(ctx context.Context, sessionID string, results []domain.AnalysisResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin results tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	written := 0
	for _, res := range results {
		pathJSON, err := json.Marshal(nonNilStrings(res.DecisionTreePath))
		if err != nil {
			return 0, fmt.Errorf("marshal decision path: %w", err)
		}
		contextJSON, err := json.Marshal(nonNilStrings(res.ContextUsed))
		if err != nil {
			return 0, fmt.Errorf("marshal context used: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO compliance_results (
	session_id, question_id, standard, section, reference, question, status, confidence, explanation, evidence,
	suggested_disclosure, decision_tree_path, context_used, sequence, analysis_time_ms, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)
ON CONFLICT (session_id, question_id) DO UPDATE
SET standard = EXCLUDED.standard,
	section = EXCLUDED.section,
	reference = EXCLUDED.reference,
	question = EXCLUDED.question,
	status = EXCLUDED.status,
	confidence = EXCLUDED.confidence,
	explanation = EXCLUDED.explanation,
	evidence = EXCLUDED.evidence,
	suggested_disclosure = EXCLUDED.suggested_disclosure,
	decision_tree_path = EXCLUDED.decision_tree_path,
	context_used = EXCLUDED.context_used,
	sequence = EXCLUDED.sequence,
	analysis_time_ms = EXCLUDED.analysis_time_ms,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
`,
			sessionID, res.QuestionID, res.Standard, res.Section, res.Reference, res.Question, string(res.Status), res.Confidence,
			res.Explanation, res.Evidence, res.SuggestedDisclosure, pathJSON, contextJSON, res.Sequence, res.AnalysisTimeMS,
			res.Error, now,
		); err != nil {
			return 0, fmt.Errorf("upsert result %s: %w", res.QuestionID, err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit results tx: %w", err)
	}
	return written, nil
}
