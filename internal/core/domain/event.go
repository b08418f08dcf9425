package domain

import "math"

type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one line of an analysis stream, serialized as {"type": ..., "data": ...}.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type AnalysisPhase string

const (
	PhasePreparing AnalysisPhase = "preparing"
	PhaseSequence1 AnalysisPhase = "sequence_1"
	PhaseSequence2 AnalysisPhase = "sequence_2"
	PhaseComplete  AnalysisPhase = "complete"
)

// RunStage is a step of the orchestrator state machine.
type RunStage string

const (
	StageExtracting  RunStage = "extracting"
	StageChunking    RunStage = "chunking"
	StageIndexing    RunStage = "indexing"
	StageMetadata    RunStage = "metadata"
	StageAnalyzing   RunStage = "analyzing"
	StageCacheHit    RunStage = "cache_hit"
	StageAggregating RunStage = "aggregating"
	StageCompleted   RunStage = "completed"
	StageFailed      RunStage = "failed"
)

type StatusPayload struct {
	Status  RunStage `json:"status"`
	Message string   `json:"message"`
	JobID   string   `json:"job_id,omitempty"`
}

type ProgressPayload struct {
	TotalQuestions     int           `json:"total_questions"`
	CompletedQuestions int           `json:"completed_questions"`
	Percentage         float64       `json:"percentage"`
	CurrentStandard    string        `json:"current_standard"`
	CurrentQuestion    string        `json:"current_question"`
	Phase              AnalysisPhase `json:"phase"`
	Errors             []string      `json:"errors"`
}

// ComputePercentage fills Percentage rounded to one decimal.
func (p *ProgressPayload) ComputePercentage() {
	if p.TotalQuestions == 0 {
		p.Percentage = 0
		return
	}
	pct := float64(p.CompletedQuestions) / float64(p.TotalQuestions) * 100
	p.Percentage = math.Round(pct*10) / 10
}

type CompletePayload struct {
	Total           int              `json:"total"`
	Compliant       int              `json:"compliant"`
	NonCompliant    int              `json:"non_compliant"`
	NotApplicable   int              `json:"not_applicable"`
	Errors          int              `json:"errors"`
	ComplianceScore int              `json:"compliance_score"`
	Results         []AnalysisResult `json:"results"`
	CacheHit        bool             `json:"cache_hit,omitempty"`
	JobID           string           `json:"job_id,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func StatusEvent(stage RunStage, message string) Event {
	return Event{Type: EventStatus, Data: StatusPayload{Status: stage, Message: message}}
}

func ResultEvent(r AnalysisResult) Event {
	return Event{Type: EventResult, Data: r}
}

func ErrorEvent(err error) Event {
	return Event{Type: EventError, Data: ErrorPayload{Message: err.Error()}}
}
