package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS compliance_sessions (
	id TEXT PRIMARY KEY,
	client_name TEXT NOT NULL DEFAULT '',
	framework TEXT NOT NULL DEFAULT 'IFRS',
	status TEXT NOT NULL,
	current_stage INTEGER NOT NULL DEFAULT 1,
	financial_statements_file TEXT NOT NULL DEFAULT '',
	financial_statements_filename TEXT NOT NULL DEFAULT '',
	notes_file TEXT NOT NULL DEFAULT '',
	notes_filename TEXT NOT NULL DEFAULT '',
	selected_standards JSONB NOT NULL DEFAULT '[]'::jsonb,
	total_standards INTEGER NOT NULL DEFAULT 0,
	total_questions INTEGER NOT NULL DEFAULT 0,
	extracted_metadata JSONB,
	analysis_results JSONB,
	compliance_score INTEGER NOT NULL DEFAULT 0,
	compliant_count INTEGER NOT NULL DEFAULT 0,
	non_compliant_count INTEGER NOT NULL DEFAULT 0,
	not_applicable_count INTEGER NOT NULL DEFAULT 0,
	chat_messages JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compliance_sessions_status ON compliance_sessions(status);

CREATE TABLE IF NOT EXISTS analysis_progress (
	job_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	status TEXT NOT NULL,
	result JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	PRIMARY KEY (job_id, question_id)
);

CREATE INDEX IF NOT EXISTS idx_analysis_progress_session ON analysis_progress(session_id);

CREATE TABLE IF NOT EXISTS analysis_cache (
	document_hash TEXT NOT NULL,
	framework TEXT NOT NULL,
	questions_hash TEXT NOT NULL,
	results JSONB NOT NULL,
	result_metadata JSONB,
	access_count INTEGER NOT NULL DEFAULT 1,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_hash, framework, questions_hash)
);

CREATE TABLE IF NOT EXISTS compliance_results (
	session_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	standard TEXT NOT NULL DEFAULT '',
	section TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	explanation TEXT NOT NULL DEFAULT '',
	evidence TEXT NOT NULL DEFAULT '',
	suggested_disclosure TEXT NOT NULL DEFAULT '',
	decision_tree_path JSONB NOT NULL DEFAULT '[]'::jsonb,
	context_used JSONB NOT NULL DEFAULT '[]'::jsonb,
	sequence INTEGER NOT NULL DEFAULT 1,
	analysis_time_ms BIGINT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, question_id)
);

CREATE INDEX IF NOT EXISTS idx_compliance_results_status ON compliance_results(session_id, status);
`

// EnsureSchema creates the compliance tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
