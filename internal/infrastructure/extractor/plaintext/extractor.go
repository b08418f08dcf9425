package plaintext

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const (
	MethodText = "local_text"
	MethodCSV  = "local_csv"
)

// Parser reads UTF-8 text, markdown and CSV files as a single page.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Extensions() []string {
	return []string{".txt", ".md", ".csv"}
}

func (p *Parser) Parse(filename string, data []byte) (domain.Extraction, error) {
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return parseCSV(filename, data)
	}

	text := string(data)
	out := domain.Extraction{
		Filename: filename,
		Method:   MethodText,
		Pages:    []domain.ExtractedPage{{Number: 1, Content: text}},
		Tables:   []domain.ExtractedTable{},
	}
	out.JoinPages()
	return out, nil
}

func parseCSV(filename string, data []byte) (domain.Extraction, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("parse csv %s: %w", filename, err)
	}

	out := domain.Extraction{
		Filename: filename,
		Method:   MethodCSV,
		Pages:    []domain.ExtractedPage{},
		Tables:   []domain.ExtractedTable{},
	}
	markdown := domain.RenderMarkdownTable(rows)
	if markdown != "" {
		columns := 0
		for _, row := range rows {
			columns = max(columns, len(row))
		}
		out.Tables = append(out.Tables, domain.ExtractedTable{
			Index:    0,
			Page:     1,
			Rows:     len(rows),
			Columns:  columns,
			Markdown: markdown,
		})
	}
	out.Pages = append(out.Pages, domain.ExtractedPage{Number: 1, Content: markdown})
	out.JoinPages()
	return out, nil
}
