package usecase

import (
	"fmt"
	"math"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const (
	insufficientContextPrefix = "Insufficient document context available to assess this requirement. "
	defaultDisclosure         = "Review and address the non-compliance identified in the explanation above."
	missingResultExplanation  = "AI did not return a result for this question."

	missingResultConfidence = 0.3
	unknownStatusConfidence = 0.3
)

var naJustifications = []string{
	"not applicable",
	"does not apply",
	"not relevant",
	"not required",
	"outside the scope",
	"no such",
	"entity does not",
	"company does not",
}

// Validate applies the post-parse quality rules to a verdict. It is
// idempotent: validating an already validated verdict changes nothing.
// A status outside the known synonyms is left as written.
func Validate(v Verdict, contextAvailable bool) Verdict {
	v.Confidence = clampConfidence(v.Confidence)
	status, statusErr := v.ComplianceStatus()

	if runeLen(v.Evidence) < 20 {
		v.Confidence = math.Min(v.Confidence, 0.7)
	}

	if status == domain.StatusNotApplicable && !hasNAJustification(v.Explanation) && runeLen(v.Explanation) < 30 {
		v.Confidence = math.Min(v.Confidence, 0.5)
	}

	if status.Assessed() && runeLen(v.Evidence) < 10 {
		v.Confidence = math.Min(v.Confidence, 0.6)
	}

	if statusErr == nil {
		v.Status = string(status)
	}

	if runeLen(v.Explanation) < 20 {
		v.Confidence = math.Min(v.Confidence, 0.5)
	}

	if !contextAvailable {
		v.Confidence = math.Min(v.Confidence, 0.5)
		if v.Status != string(domain.StatusNotApplicable) {
			v.Status = string(domain.StatusNotApplicable)
			v.Explanation = insufficientContextPrefix + v.Explanation
		}
	}

	if v.Status == string(domain.StatusNonCompliant) && runeLen(strings.TrimSpace(v.SuggestedDisclosure)) < 10 {
		v.SuggestedDisclosure = defaultDisclosure
	}

	v.Confidence = clampConfidence(v.Confidence)
	return v
}

// flagUnknownStatus downgrades a verdict whose status could not be normalized.
func flagUnknownStatus(v Verdict) Verdict {
	raw := v.Status
	v.Status = string(domain.StatusNotApplicable)
	v.Confidence = math.Min(clampConfidence(v.Confidence), unknownStatusConfidence)
	v.Explanation = fmt.Sprintf("Unrecognized status %q returned by the model. %s", raw, v.Explanation)
	return v
}

func hasNAJustification(explanation string) bool {
	lower := strings.ToLower(explanation)
	for _, phrase := range naJustifications {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func runeLen(s string) int {
	return len([]rune(s))
}

// missingResult is the placeholder for a question the model skipped.
func missingResult(q domain.Question, sequence int, context []string) domain.AnalysisResult {
	r := domain.NewResult(q, sequence)
	r.Status = domain.StatusNotApplicable
	r.Confidence = missingResultConfidence
	r.Explanation = missingResultExplanation
	r.ContextUsed = nonNil(context)
	return r
}

// applyVerdict binds a validated verdict to its question.
func applyVerdict(q domain.Question, sequence int, v Verdict, context []string) domain.AnalysisResult {
	r := domain.NewResult(q, sequence)
	r.Status = domain.ComplianceStatus(v.Status)
	r.Confidence = v.Confidence
	r.Explanation = v.Explanation
	r.Evidence = v.Evidence
	r.SuggestedDisclosure = v.SuggestedDisclosure
	r.DecisionTreePath = nonNil(v.DecisionTreePath)
	r.ContextUsed = nonNil(context)
	return r
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
