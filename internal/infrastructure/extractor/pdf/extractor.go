package pdf

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const Method = "local_pdf"

// Parser extracts the text layer of each PDF page. Scanned pages without a
// text layer come back empty.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Extensions() []string {
	return []string{".pdf"}
}

func (p *Parser) Parse(filename string, data []byte) (out domain.Extraction, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf %s: %v", filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open pdf %s: %w", filename, err)
	}

	out = domain.Extraction{
		Filename: filename,
		Method:   Method,
		Pages:    make([]domain.ExtractedPage, 0, reader.NumPage()),
		Tables:   []domain.ExtractedTable{},
	}
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			slog.Warn("pdf_page_extract_failed", "filename", filename, "page", i, "error", err)
			continue
		}
		out.Pages = append(out.Pages, domain.ExtractedPage{Number: i, Content: normalizeText(text)})
	}
	out.JoinPages()
	return out, nil
}

func normalizeText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
