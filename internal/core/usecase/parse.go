package usecase

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

var (
	resultBlockPattern = regexp.MustCompile(`(?s)===RESULT_START===\s*(.*?)\s*===RESULT_END===`)
	resultFieldPattern = regexp.MustCompile(`(?m)^(QUESTION_ID|STATUS|CONFIDENCE|EXPLANATION|EVIDENCE|SUGGESTED_DISCLOSURE|DECISION_TREE_PATH):\s*(.*)$`)
)

// Verdict is one result block as written by the model, before it is bound to
// a question. Status holds the raw status text until Validate normalizes it.
type Verdict struct {
	QuestionID          string
	Status              string
	Confidence          float64
	Explanation         string
	Evidence            string
	SuggestedDisclosure string
	DecisionTreePath    []string
}

// ComplianceStatus maps the verdict status onto a domain status.
func (v Verdict) ComplianceStatus() (domain.ComplianceStatus, error) {
	return domain.NormalizeModelStatus(v.Status)
}

// ParseAnalysisResponse extracts every result block that names a question id.
// Blocks without QUESTION_ID are dropped; a repeated field keeps its last value.
func ParseAnalysisResponse(text string) []Verdict {
	matches := resultBlockPattern.FindAllStringSubmatch(text, -1)
	out := make([]Verdict, 0, len(matches))
	for _, m := range matches {
		fields := map[string]string{}
		for _, f := range resultFieldPattern.FindAllStringSubmatch(m[1], -1) {
			fields[f[1]] = strings.TrimSpace(f[2])
		}
		id := fields["QUESTION_ID"]
		if id == "" {
			continue
		}
		out = append(out, Verdict{
			QuestionID:          id,
			Status:              fields["STATUS"],
			Confidence:          parseConfidence(fields["CONFIDENCE"]),
			Explanation:         fields["EXPLANATION"],
			Evidence:            fields["EVIDENCE"],
			SuggestedDisclosure: fields["SUGGESTED_DISCLOSURE"],
			DecisionTreePath:    splitPath(fields["DECISION_TREE_PATH"]),
		})
	}
	return out
}

// indexVerdicts keys verdicts by question id; a later block for the same id wins.
func indexVerdicts(verdicts []Verdict) map[string]Verdict {
	out := make(map[string]Verdict, len(verdicts))
	for _, v := range verdicts {
		out[v.QuestionID] = v
	}
	return out
}

func parseConfidence(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) {
		return 0
	}
	return value
}

func splitPath(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
