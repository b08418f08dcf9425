package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// splitPhases separates first-pass questions (source and independent) from
// followups. Relative order is preserved in both slices.
func splitPhases(questions []domain.Question) (first, followups []domain.Question) {
	for _, q := range questions {
		if q.IsFollowup() {
			followups = append(followups, q)
			continue
		}
		first = append(first, q)
	}
	return first, followups
}

// triggeredFollowups keeps the followups whose source question resolved with
// the triggering status. A followup without a source is always kept.
func triggeredFollowups(followups []domain.Question, firstPass map[string]domain.AnalysisResult) []domain.Question {
	out := make([]domain.Question, 0, len(followups))
	for _, q := range followups {
		if q.SourceQuestion == "" {
			out = append(out, q)
			continue
		}
		source, ok := firstPass[q.SourceQuestion]
		if !ok {
			continue
		}
		trigger := strings.ToUpper(strings.TrimSpace(q.SourceTrigger))
		if trigger == "" || trigger == string(source.Status) {
			out = append(out, q)
		}
	}
	return out
}

// questionKey is the id a question is announced under in the prompt. Questions
// without an id fall back to their position in the run.
func questionKey(q domain.Question, position int) string {
	if q.ID != "" {
		return q.ID
	}
	return fmt.Sprintf("q_%d", position)
}

func splitBatches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
