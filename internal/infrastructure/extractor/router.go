package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
)

// Parser converts the raw bytes of one file format.
type Parser interface {
	Extensions() []string
	Parse(filename string, data []byte) (domain.Extraction, error)
}

// Router reads a stored document and dispatches it to the parser registered
// for its extension.
type Router struct {
	storage ports.ObjectStorage
	parsers map[string]Parser
}

func NewRouter(storage ports.ObjectStorage, parsers ...Parser) *Router {
	r := &Router{storage: storage, parsers: make(map[string]Parser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.parsers[strings.ToLower(ext)] = p
		}
	}
	return r
}

func (r *Router) Supports(filename string) bool {
	_, ok := r.parsers[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func (r *Router) Extract(ctx context.Context, storageKey, filename string) (domain.Extraction, error) {
	if filename == "" {
		filename = filepath.Base(storageKey)
	}
	parser, ok := r.parsers[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedFormat, "extract document", fmt.Errorf("%s", filename))
	}

	reader, err := r.storage.Open(ctx, storageKey)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read source document: %w", err)
	}

	out, err := parser.Parse(filename, raw)
	if err != nil {
		return domain.Extraction{}, err
	}
	slog.Info("document_extracted",
		"filename", filename,
		"method", out.Method,
		"pages", out.TotalPages(),
		"tables", len(out.Tables),
		"chars", len(out.FullText),
	)
	return out, nil
}
