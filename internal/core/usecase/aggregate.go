package usecase

import (
	"math"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const unknownStandard = "Unknown"

// Aggregate summarizes a result set. The compliance score is the rounded share
// of YES among assessed (YES or NO) results, 0 when nothing was assessed.
func Aggregate(results []domain.AnalysisResult) domain.AggregateSummary {
	summary := domain.AggregateSummary{
		Total:      len(results),
		ByStandard: map[string]domain.StandardBreakdown{},
	}
	confidenceSum := 0.0
	perStandardSum := map[string]float64{}

	for _, r := range results {
		std := r.Standard
		if std == "" {
			std = unknownStandard
		}
		bd := summary.ByStandard[std]
		bd.Total++
		switch r.Status {
		case domain.StatusCompliant:
			summary.Compliant++
			bd.Compliant++
		case domain.StatusNonCompliant:
			summary.NonCompliant++
			bd.NonCompliant++
		case domain.StatusNotApplicable:
			summary.NotApplicable++
			bd.NotApplicable++
		case domain.StatusError:
			summary.Errors++
			bd.Errors++
		}
		summary.ByStandard[std] = bd
		confidenceSum += r.Confidence
		perStandardSum[std] += r.Confidence
	}

	summary.ComplianceScore = ComplianceScore(summary.Compliant, summary.NonCompliant)
	for std, bd := range summary.ByStandard {
		bd.AvgConfidence = round2(perStandardSum[std] / float64(bd.Total))
		summary.ByStandard[std] = bd
	}
	summary.AvgConfidence = round2(confidenceSum / float64(max(summary.Total, 1)))
	return summary
}

func ComplianceScore(compliant, nonCompliant int) int {
	assessed := compliant + nonCompliant
	if assessed == 0 {
		return 0
	}
	return int(math.Round(float64(compliant) / float64(assessed) * 100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// completePayload builds the terminal stream event payload for a result set.
func completePayload(results []domain.AnalysisResult, errorCount int) domain.CompletePayload {
	payload := domain.CompletePayload{Total: len(results), Errors: errorCount, Results: results}
	for _, r := range results {
		switch r.Status {
		case domain.StatusCompliant:
			payload.Compliant++
		case domain.StatusNonCompliant:
			payload.NonCompliant++
		case domain.StatusNotApplicable:
			payload.NotApplicable++
		}
	}
	payload.ComplianceScore = ComplianceScore(payload.Compliant, payload.NonCompliant)
	return payload
}
