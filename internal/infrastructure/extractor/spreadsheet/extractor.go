package spreadsheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const Method = "local_xlsx"

// Parser turns every worksheet into one page holding the sheet's markdown
// table, headed by the sheet name.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Extensions() []string {
	return []string{".xlsx", ".xlsm"}
}

func (p *Parser) Parse(filename string, data []byte) (domain.Extraction, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open workbook %s: %w", filename, err)
	}
	defer book.Close()

	out := domain.Extraction{
		Filename: filename,
		Method:   Method,
		Pages:    []domain.ExtractedPage{},
		Tables:   []domain.ExtractedTable{},
	}
	for i, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		rows = trimEmptyRows(rows)
		if len(rows) == 0 {
			continue
		}

		markdown := domain.RenderMarkdownTable(rows)
		columns := 0
		for _, row := range rows {
			columns = max(columns, len(row))
		}
		page := i + 1
		out.Tables = append(out.Tables, domain.ExtractedTable{
			Index:    len(out.Tables),
			Page:     page,
			Rows:     len(rows),
			Columns:  columns,
			Markdown: markdown,
		})
		out.Pages = append(out.Pages, domain.ExtractedPage{
			Number:  page,
			Content: sheet + "\n\n" + markdown,
		})
	}
	out.JoinPages()
	return out, nil
}

func trimEmptyRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		out = append(out, row)
	}
	return out
}
