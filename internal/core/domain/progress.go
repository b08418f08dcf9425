package domain

import "time"

type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// AnalysisProgress is the durable per-question state of one analysis job.
type AnalysisProgress struct {
	JobID       string          `json:"job_id"`
	SessionID   string          `json:"session_id"`
	QuestionID  string          `json:"question_id"`
	Status      ProgressStatus  `json:"status"`
	Result      *AnalysisResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
