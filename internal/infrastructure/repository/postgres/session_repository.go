package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	standardsJSON, err := json.Marshal(nonNilStrings(s.SelectedStandards))
	if err != nil {
		return fmt.Errorf("marshal selected standards: %w", err)
	}
	messages := s.ChatMessages
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal chat messages: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO compliance_sessions (
	id, client_name, framework, status, current_stage, financial_statements_file, financial_statements_filename,
	notes_file, notes_filename, selected_standards, total_standards, total_questions, chat_messages, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		s.ID, s.ClientName, s.Framework, string(s.Status), s.CurrentStage, s.FinancialStatementsFile, s.FinancialStatementsName,
		s.NotesFile, s.NotesFilename, standardsJSON, s.TotalStandards, s.TotalQuestions, messagesJSON, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, client_name, framework, status, current_stage, financial_statements_file, financial_statements_filename,
	notes_file, notes_filename, selected_standards, total_standards, total_questions, extracted_metadata, analysis_results,
	compliance_score, compliant_count, non_compliant_count, not_applicable_count, chat_messages, created_at, updated_at
FROM compliance_sessions
WHERE id = $1
`, id)

	var s domain.Session
	var status string
	var standardsRaw, metadataRaw, analysisRaw, messagesRaw []byte

	err := row.Scan(
		&s.ID, &s.ClientName, &s.Framework, &status, &s.CurrentStage, &s.FinancialStatementsFile, &s.FinancialStatementsName,
		&s.NotesFile, &s.NotesFilename, &standardsRaw, &s.TotalStandards, &s.TotalQuestions, &metadataRaw, &analysisRaw,
		&s.ComplianceScore, &s.CompliantCount, &s.NonCompliantCount, &s.NotApplicableCount, &messagesRaw, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.Status = domain.SessionStatus(status)

	if err := unmarshalOptional(standardsRaw, &s.SelectedStandards); err != nil {
		return nil, fmt.Errorf("unmarshal selected standards: %w", err)
	}
	if err := unmarshalOptional(metadataRaw, &s.ExtractedMetadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(analysisRaw) > 0 && string(analysisRaw) != "null" {
		var bundle domain.AnalysisBundle
		if err := json.Unmarshal(analysisRaw, &bundle); err != nil {
			return nil, fmt.Errorf("unmarshal analysis results: %w", err)
		}
		s.AnalysisResults = &bundle
	}
	if err := unmarshalOptional(messagesRaw, &s.ChatMessages); err != nil {
		return nil, fmt.Errorf("unmarshal chat messages: %w", err)
	}
	s.SelectedStandards = nonNilStrings(s.SelectedStandards)
	if s.ChatMessages == nil {
		s.ChatMessages = []domain.ChatMessage{}
	}
	return &s, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, stage int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE compliance_sessions
SET status = $2, current_stage = $3, updated_at = $4
WHERE id = $1
`, id, string(status), stage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return requireAffected(result, "update session status", id)
}

func (r *SessionRepository) SaveMetadata(ctx context.Context, id string, metadata domain.DocumentMetadata) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE compliance_sessions
SET extracted_metadata = $2, updated_at = $3
WHERE id = $1
`, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return requireAffected(result, "save metadata", id)
}

// SaveAnalysis stores a finished run on the session and marks it completed.
func (r *SessionRepository) SaveAnalysis(ctx context.Context, id string, a domain.SessionAnalysis) error {
	raw, err := json.Marshal(a.Bundle)
	if err != nil {
		return fmt.Errorf("marshal analysis results: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE compliance_sessions
SET status = $2, current_stage = $3, analysis_results = $4, compliance_score = $5, compliant_count = $6,
	non_compliant_count = $7, not_applicable_count = $8, total_standards = $9, total_questions = $10, updated_at = $11
WHERE id = $1
`,
		id, string(domain.SessionCompleted), domain.SessionStageCompleted, raw, a.ComplianceScore, a.CompliantCount,
		a.NonCompliantCount, a.NotApplicableCount, a.TotalStandards, a.TotalQuestions, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return requireAffected(result, "save analysis", id)
}

func (r *SessionRepository) AppendMessage(ctx context.Context, id string, message domain.ChatMessage) error {
	raw, err := json.Marshal([]domain.ChatMessage{message})
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE compliance_sessions
SET chat_messages = chat_messages || $2::jsonb, updated_at = $3
WHERE id = $1
`, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return requireAffected(result, "append chat message", id)
}

func requireAffected(result sql.Result, op, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

func unmarshalOptional(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
