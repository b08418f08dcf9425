package domain

// StandardBreakdown holds the per-standard counts of an aggregate summary.
type StandardBreakdown struct {
	Total         int     `json:"total"`
	Compliant     int     `json:"compliant"`
	NonCompliant  int     `json:"non_compliant"`
	NotApplicable int     `json:"not_applicable"`
	Errors        int     `json:"errors"`
	AvgConfidence float64 `json:"avg_confidence"`
}

type AggregateSummary struct {
	Total           int                          `json:"total"`
	Compliant       int                          `json:"compliant"`
	NonCompliant    int                          `json:"non_compliant"`
	NotApplicable   int                          `json:"not_applicable"`
	Errors          int                          `json:"errors"`
	ComplianceScore int                          `json:"compliance_score"`
	ByStandard      map[string]StandardBreakdown `json:"by_standard"`
	AvgConfidence   float64                      `json:"avg_confidence"`
}
