package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

var taxonomyPatterns = map[domain.Taxonomy][]*regexp.Regexp{
	domain.TaxonomyBalanceSheet: compileAll(
		`statement\s+of\s+financial\s+position`,
		`balance\s+sheet`,
		`assets?\s+and\s+liabilit`,
		`current\s+assets?`,
		`non[- ]current\s+assets?`,
		`total\s+equity`,
		`shareholders?\s+equity`,
	),
	domain.TaxonomyIncomeStatement: compileAll(
		`statement\s+of\s+(comprehensive\s+)?income`,
		`statement\s+of\s+profit\s+(and|or)\s+loss`,
		`statement\s+of\s+financial\s+performance`,
		`revenue\s+recognition`,
		`operating\s+(profit|loss)`,
		`earnings?\s+per\s+share`,
	),
	domain.TaxonomyCashFlow: compileAll(
		`statement\s+of\s+cash\s*flows?`,
		`cash\s+flow\s+statement`,
		`operating\s+activities`,
		`investing\s+activities`,
		`financing\s+activities`,
		`cash\s+and\s+cash\s+equivalents`,
	),
	domain.TaxonomyEquityChanges: compileAll(
		`statement\s+of\s+changes\s+in\s+equity`,
		`retained\s+earnings`,
		`share\s+capital`,
		`other\s+comprehensive\s+income`,
	),
	domain.TaxonomyNotes: compileAll(
		`notes?\s+to\s+(the\s+)?(consolidated\s+)?financial\s+statements?`,
		`accounting\s+polic(y|ies)`,
		`significant\s+accounting`,
		`summary\s+of\s+.*accounting`,
		`basis\s+of\s+preparation`,
	),
	domain.TaxonomyAuditReport: compileAll(
		`independent\s+auditor`,
		`audit\s+report`,
		`opinion\s+on\s+the\s+financial`,
	),
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Classify scores text against every category's patterns and returns the
// category with the most matches. Ties go to the earlier category.
func Classify(text string) domain.Taxonomy {
	lower := strings.ToLower(text)
	best := domain.TaxonomyGeneral
	bestScore := 0
	for _, category := range domain.ScoredTaxonomies {
		score := 0
		for _, re := range taxonomyPatterns[category] {
			score += len(re.FindAllStringIndex(lower, -1))
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}
	return best
}

// ContentHash is the sha256 hex of content truncated to 16 characters.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
