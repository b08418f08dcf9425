package domain

// DocumentRef identifies the document a chunk set belongs to.
type DocumentRef struct {
	SessionID    string `json:"session_id"`
	DocumentHash string `json:"document_hash"`
	SourceFile   string `json:"source_file,omitempty"`
}

// SearchFilter narrows retrieval. Empty fields do not filter.
type SearchFilter struct {
	DocumentHash string     `json:"document_hash,omitempty"`
	SessionID    string     `json:"session_id,omitempty"`
	Taxonomies   []Taxonomy `json:"taxonomies,omitempty"`
}

func (f SearchFilter) AllowsTaxonomy(t Taxonomy) bool {
	if len(f.Taxonomies) == 0 {
		return true
	}
	for _, allowed := range f.Taxonomies {
		if allowed == t {
			return true
		}
	}
	return false
}

type SearchHit struct {
	ChunkID    string   `json:"chunk_id"`
	Content    string   `json:"content"`
	Score      float64  `json:"score"`
	Taxonomy   Taxonomy `json:"taxonomy"`
	ChunkIndex int      `json:"chunk_index"`
	HasTable   bool     `json:"has_table"`
}

var financialStatementTaxonomies = []Taxonomy{
	TaxonomyBalanceSheet,
	TaxonomyIncomeStatement,
	TaxonomyCashFlow,
	TaxonomyEquityChanges,
}

// RouteContext maps a question's context_required hint onto a taxonomy filter.
// A nil result means the whole document is searched.
func RouteContext(hint string) []Taxonomy {
	switch hint {
	case "notes_only", "notes":
		return []Taxonomy{TaxonomyNotes}
	case "financial_statements":
		out := make([]Taxonomy, len(financialStatementTaxonomies))
		copy(out, financialStatementTaxonomies)
		return out
	case "", "full":
		return nil
	}
	if t, ok := ParseTaxonomy(hint); ok {
		return []Taxonomy{t}
	}
	return nil
}
