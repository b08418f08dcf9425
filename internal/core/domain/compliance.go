package domain

import (
	"fmt"
	"strings"
)

// ComplianceStatus is the verdict assigned to a single compliance question.
type ComplianceStatus string

const (
	StatusCompliant     ComplianceStatus = "YES"
	StatusNonCompliant  ComplianceStatus = "NO"
	StatusNotApplicable ComplianceStatus = "N/A"
	StatusPending       ComplianceStatus = "PENDING"
	StatusError         ComplianceStatus = "ERROR"
)

var modelStatusSynonyms = map[string]ComplianceStatus{
	"YES":            StatusCompliant,
	"COMPLIANT":      StatusCompliant,
	"TRUE":           StatusCompliant,
	"PASS":           StatusCompliant,
	"NO":             StatusNonCompliant,
	"NON-COMPLIANT":  StatusNonCompliant,
	"NON_COMPLIANT":  StatusNonCompliant,
	"FALSE":          StatusNonCompliant,
	"FAIL":           StatusNonCompliant,
	"N/A":            StatusNotApplicable,
	"NA":             StatusNotApplicable,
	"NOT APPLICABLE": StatusNotApplicable,
	"NOT_APPLICABLE": StatusNotApplicable,
}

// NormalizeModelStatus maps a status emitted by the model onto one of the three
// assessable verdicts. Values outside the synonym set are rejected.
func NormalizeModelStatus(raw string) (ComplianceStatus, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if status, ok := modelStatusSynonyms[key]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

func (s ComplianceStatus) Valid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusNotApplicable, StatusPending, StatusError:
		return true
	default:
		return false
	}
}

// Assessed reports whether the status counts towards the compliance score.
func (s ComplianceStatus) Assessed() bool {
	return s == StatusCompliant || s == StatusNonCompliant
}

type QuestionType string

const (
	QuestionSource      QuestionType = "source"
	QuestionIndependent QuestionType = "independent"
	QuestionFollowup    QuestionType = "followup"
)

// Question is one compliance item of a standard's decision-tree catalog.
type Question struct {
	ID               string        `json:"id" yaml:"id"`
	Section          string        `json:"section" yaml:"section"`
	Reference        string        `json:"reference" yaml:"reference"`
	Question         string        `json:"question" yaml:"question"`
	OriginalQuestion string        `json:"original_question,omitempty" yaml:"original_question"`
	Type             QuestionType  `json:"question_type,omitempty" yaml:"question_type"`
	SourceQuestion   string        `json:"source_question,omitempty" yaml:"source_question"`
	SourceTrigger    string        `json:"source_trigger,omitempty" yaml:"source_trigger"`
	ContextRequired  string        `json:"context_required,omitempty" yaml:"context_required"`
	DecisionTree     *DecisionTree `json:"decision_tree,omitempty" yaml:"decision_tree"`
}

func (q Question) IsFollowup() bool {
	return q.Type == QuestionFollowup
}

// AnalysisResult is the validated verdict for one question of one run.
type AnalysisResult struct {
	QuestionID          string           `json:"question_id"`
	Standard            string           `json:"standard"`
	Section             string           `json:"section"`
	Reference           string           `json:"reference"`
	Question            string           `json:"question"`
	Status              ComplianceStatus `json:"status"`
	Confidence          float64          `json:"confidence"`
	Explanation         string           `json:"explanation"`
	Evidence            string           `json:"evidence"`
	SuggestedDisclosure string           `json:"suggested_disclosure"`
	DecisionTreePath    []string         `json:"decision_tree_path"`
	ContextUsed         []string         `json:"context_used"`
	Sequence            int              `json:"sequence"`
	AnalysisTimeMS      int64            `json:"analysis_time_ms"`
	Error               string           `json:"error,omitempty"`
}

// NewResult seeds a result with the identifying fields of its question.
func NewResult(q Question, sequence int) AnalysisResult {
	return AnalysisResult{
		QuestionID:       q.ID,
		Standard:         q.Section,
		Section:          q.Section,
		Reference:        q.Reference,
		Question:         q.Question,
		Status:           StatusPending,
		DecisionTreePath: []string{},
		ContextUsed:      []string{},
		Sequence:         sequence,
	}
}

// Failed reports whether the result carries an analysis error.
func (r AnalysisResult) Failed() bool {
	return r.Status == StatusError || r.Error != ""
}
