package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const (
	metadataMaxTokens = 1024
	suggestMaxTokens  = 1024
)

// ExtractMetadata asks the model to describe the reporting entity. Failures
// are returned inside the metadata as an "error" field.
func (e *AnalysisEngine) ExtractMetadata(ctx context.Context, text string) domain.DocumentMetadata {
	completion, err := e.llm.CompleteJSON(ctx, domain.CompletionRequest{
		SystemPrompt: metadataSystemPrompt,
		UserPrompt:   "Document text:\n\n" + truncateRunes(text, metadataExcerptChars),
		Temperature:  0,
		MaxTokens:    metadataMaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		slog.Warn("metadata_extraction_failed", "error", err)
		return domain.DocumentMetadata{"error": err.Error()}
	}
	if completion.Parsed == nil {
		slog.Warn("metadata_extraction_failed", "error", "response is not a json object")
		return domain.DocumentMetadata{"error": "metadata response is not a json object"}
	}
	return domain.DocumentMetadata(completion.Parsed)
}

// SuggestStandards returns the section codes the model considers applicable
// to the document, or an empty list when the model cannot answer.
func (e *AnalysisEngine) SuggestStandards(ctx context.Context, text string, standards []domain.StandardInfo) []string {
	completion, err := e.llm.CompleteJSON(ctx, domain.CompletionRequest{
		SystemPrompt: suggestSystemPrompt,
		UserPrompt:   buildSuggestPrompt(text, standards),
		Temperature:  0,
		MaxTokens:    suggestMaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		slog.Warn("standard_suggestion_failed", "error", err)
		return []string{}
	}

	raw, _ := completion.Parsed["standards"].([]any)
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		code, ok := item.(string)
		if !ok {
			continue
		}
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
