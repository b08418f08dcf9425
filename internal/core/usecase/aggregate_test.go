package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

func TestAggregateCountsAndScore(t *testing.T) {
	results := []domain.AnalysisResult{
		{Standard: "IAS 1", Status: domain.StatusCompliant, Confidence: 0.9},
		{Standard: "IAS 1", Status: domain.StatusCompliant, Confidence: 0.8},
		{Standard: "IAS 1", Status: domain.StatusNonCompliant, Confidence: 0.7},
		{Standard: "IFRS 9", Status: domain.StatusNotApplicable, Confidence: 0.5},
		{Standard: "", Status: domain.StatusError},
	}

	summary := Aggregate(results)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Compliant)
	assert.Equal(t, 1, summary.NonCompliant)
	assert.Equal(t, 1, summary.NotApplicable)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 67, summary.ComplianceScore)
	assert.InDelta(t, 0.58, summary.AvgConfidence, 1e-9)

	ias1 := summary.ByStandard["IAS 1"]
	assert.Equal(t, 3, ias1.Total)
	assert.InDelta(t, 0.8, ias1.AvgConfidence, 1e-9)
	assert.Equal(t, 1, summary.ByStandard[unknownStandard].Errors)
}

func TestAggregateEmpty(t *testing.T) {
	summary := Aggregate(nil)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.ComplianceScore)
	assert.Zero(t, summary.AvgConfidence)
	assert.Empty(t, summary.ByStandard)
}

func TestComplianceScoreBounds(t *testing.T) {
	assert.Equal(t, 0, ComplianceScore(0, 0))
	assert.Equal(t, 0, ComplianceScore(0, 4))
	assert.Equal(t, 100, ComplianceScore(3, 0))
	assert.Equal(t, 50, ComplianceScore(1, 1))
}
