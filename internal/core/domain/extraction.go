package domain

import "strings"

type ExtractedPage struct {
	Number  int    `json:"page_number"`
	Content string `json:"content"`
}

// ExtractedTable keeps a table as its markdown rendering.
type ExtractedTable struct {
	Index    int    `json:"index"`
	Page     int    `json:"page,omitempty"`
	Rows     int    `json:"row_count"`
	Columns  int    `json:"column_count"`
	Markdown string `json:"markdown"`
}

// Extraction is the page-structured text of one source document.
type Extraction struct {
	Filename string           `json:"filename"`
	Method   string           `json:"extraction_method"`
	Pages    []ExtractedPage  `json:"pages"`
	Tables   []ExtractedTable `json:"tables"`
	FullText string           `json:"full_text"`
}

func (e Extraction) TotalPages() int {
	return len(e.Pages)
}

// JoinPages builds FullText from the pages separated by blank lines.
func (e *Extraction) JoinPages() {
	parts := make([]string, 0, len(e.Pages))
	for _, page := range e.Pages {
		parts = append(parts, page.Content)
	}
	e.FullText = strings.Join(parts, "\n\n")
}

// RenderMarkdownTable renders rows as a markdown table with a header separator
// after the first row. Short rows are padded to the widest row.
func RenderMarkdownTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return ""
	}

	lines := make([]string, 0, len(rows)+1)
	for i, row := range rows {
		cells := make([]string, width)
		copy(cells, row)
		for j := range cells {
			cells[j] = strings.ReplaceAll(strings.TrimSpace(cells[j]), "|", "/")
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 {
			sep := make([]string, width)
			for j := range sep {
				sep[j] = "---"
			}
			lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}
