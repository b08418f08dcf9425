package domain

import "time"

// RunRequest starts (or resumes, when JobID is set) an analysis of a session.
// RequestedAt is stamped when the request is queued.
type RunRequest struct {
	SessionID   string    `json:"session_id"`
	JobID       string    `json:"job_id,omitempty"`
	RequestedAt time.Time `json:"requested_at,omitzero"`
}

type RunOutcome struct {
	SessionID           string           `json:"session_id"`
	JobID               string           `json:"job_id"`
	Status              SessionStatus    `json:"status"`
	ComplianceScore     int              `json:"compliance_score"`
	Summary             AggregateSummary `json:"summary"`
	TotalResults        int              `json:"total_results"`
	AnalysisTimeSeconds float64          `json:"analysis_time_seconds"`
	CacheHit            bool             `json:"cache_hit"`
}

// NewSession is the input for registering a session over already-stored files.
type NewSession struct {
	ClientName              string   `json:"client_name"`
	Framework               string   `json:"framework"`
	FinancialStatementsFile string   `json:"financial_statements_file"`
	FinancialStatementsName string   `json:"financial_statements_filename"`
	NotesFile               string   `json:"notes_file"`
	NotesFilename           string   `json:"notes_filename"`
	SelectedStandards       []string `json:"selected_standards"`
}
