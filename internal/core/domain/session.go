package domain

import "time"

type SessionStatus string

const (
	SessionAwaitingUpload     SessionStatus = "awaiting_upload"
	SessionProcessing         SessionStatus = "processing"
	SessionMetadataReview     SessionStatus = "metadata_review"
	SessionFrameworkSelection SessionStatus = "framework_selection"
	SessionStandardsSelection SessionStatus = "standards_selection"
	SessionContextPreview     SessionStatus = "context_preview"
	SessionAnalyzing          SessionStatus = "analyzing"
	SessionCompleted          SessionStatus = "completed"
	SessionFailed             SessionStatus = "failed"
)

const (
	SessionStageAnalyzing = 6
	SessionStageCompleted = 7
)

const DefaultFramework = "IFRS"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type ChatMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// DocumentMetadata is the model-extracted description of the reporting entity.
type DocumentMetadata map[string]any

// CompanyName returns the extracted company name or "Unknown".
func (m DocumentMetadata) CompanyName() string {
	if name, ok := m["company_name"].(string); ok && name != "" {
		return name
	}
	return "Unknown"
}

// Session is the document identity an analysis run operates on.
type Session struct {
	ID                      string           `json:"id"`
	ClientName              string           `json:"client_name"`
	Framework               string           `json:"framework"`
	Status                  SessionStatus    `json:"status"`
	CurrentStage            int              `json:"current_stage"`
	FinancialStatementsFile string           `json:"financial_statements_file,omitempty"`
	FinancialStatementsName string           `json:"financial_statements_filename,omitempty"`
	NotesFile               string           `json:"notes_file,omitempty"`
	NotesFilename           string           `json:"notes_filename,omitempty"`
	SelectedStandards       []string         `json:"selected_standards"`
	TotalStandards          int              `json:"total_standards"`
	TotalQuestions          int              `json:"total_questions"`
	ExtractedMetadata       DocumentMetadata `json:"extracted_metadata,omitempty"`
	AnalysisResults         *AnalysisBundle  `json:"analysis_results,omitempty"`
	ComplianceScore         int              `json:"compliance_score"`
	CompliantCount          int              `json:"compliant_count"`
	NonCompliantCount       int              `json:"non_compliant_count"`
	NotApplicableCount      int              `json:"not_applicable_count"`
	ChatMessages            []ChatMessage    `json:"chat_messages"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

func (s *Session) EffectiveFramework() string {
	if s.Framework == "" {
		return DefaultFramework
	}
	return s.Framework
}

// SessionAnalysis is the completed-run snapshot written back onto a session.
type SessionAnalysis struct {
	Bundle             AnalysisBundle
	ComplianceScore    int
	CompliantCount     int
	NonCompliantCount  int
	NotApplicableCount int
	TotalStandards     int
	TotalQuestions     int
}
