package domain

// Taxonomy is the financial-statement category a chunk is tagged with.
type Taxonomy string

const (
	TaxonomyBalanceSheet    Taxonomy = "balance_sheet"
	TaxonomyIncomeStatement Taxonomy = "income_statement"
	TaxonomyCashFlow        Taxonomy = "cash_flow"
	TaxonomyEquityChanges   Taxonomy = "equity_changes"
	TaxonomyNotes           Taxonomy = "notes"
	TaxonomyAuditReport     Taxonomy = "audit_report"
	TaxonomyGeneral         Taxonomy = "general"
)

// ScoredTaxonomies lists the categories with a pattern set, in tie-break order.
var ScoredTaxonomies = []Taxonomy{
	TaxonomyBalanceSheet,
	TaxonomyIncomeStatement,
	TaxonomyCashFlow,
	TaxonomyEquityChanges,
	TaxonomyNotes,
	TaxonomyAuditReport,
}

func ParseTaxonomy(raw string) (Taxonomy, bool) {
	t := Taxonomy(raw)
	if t == TaxonomyGeneral {
		return t, true
	}
	for _, known := range ScoredTaxonomies {
		if known == t {
			return t, true
		}
	}
	return "", false
}

// DocumentChunk is one bounded slice of extracted document text.
type DocumentChunk struct {
	ID          string   `json:"chunk_id"`
	Content     string   `json:"content"`
	Index       int      `json:"chunk_index"`
	Taxonomy    Taxonomy `json:"taxonomy"`
	HasTable    bool     `json:"has_table"`
	ContentHash string   `json:"content_hash"`
	CharCount   int      `json:"char_count"`
}
