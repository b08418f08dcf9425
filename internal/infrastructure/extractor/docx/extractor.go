package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const (
	Method       = "local_docx"
	documentPart = "word/document.xml"
)

// Parser reads the main document part of a DOCX file. Paragraph text is kept
// in order and each table is rendered inline as markdown.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Extensions() []string {
	return []string{".docx"}
}

func (p *Parser) Parse(filename string, data []byte) (domain.Extraction, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open docx %s: %w", filename, err)
	}
	var part *zip.File
	for _, f := range archive.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return domain.Extraction{}, fmt.Errorf("open docx %s: missing %s", filename, documentPart)
	}

	rc, err := part.Open()
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open docx part: %w", err)
	}
	defer rc.Close()

	blocks, tables, err := walkBody(rc)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("parse docx %s: %w", filename, err)
	}

	out := domain.Extraction{
		Filename: filename,
		Method:   Method,
		Pages:    []domain.ExtractedPage{{Number: 1, Content: strings.Join(blocks, "\n\n")}},
		Tables:   tables,
	}
	out.JoinPages()
	return out, nil
}

type walker struct {
	blocks []string
	tables []domain.ExtractedTable

	para      strings.Builder
	inText    bool
	tableRows [][]string
	row       []string
	cell      []string
	depth     int
}

// walkBody streams the WordprocessingML body. Nested tables are flattened into
// the text of their enclosing cell.
func walkBody(r io.Reader) ([]string, []domain.ExtractedTable, error) {
	dec := xml.NewDecoder(r)
	w := &walker{}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t.Name.Local)
		case xml.EndElement:
			w.end(t.Name.Local)
		case xml.CharData:
			if w.inText {
				w.para.Write(t)
			}
		}
	}
	return w.blocks, w.tables, nil
}

func (w *walker) start(name string) {
	switch name {
	case "t":
		w.inText = true
	case "tab":
		w.para.WriteByte('\t')
	case "br", "cr":
		w.para.WriteByte('\n')
	case "tbl":
		w.depth++
		if w.depth == 1 {
			w.tableRows = nil
		}
	case "tr":
		if w.depth == 1 {
			w.row = nil
		}
	case "tc":
		if w.depth == 1 {
			w.cell = nil
		}
	}
}

func (w *walker) end(name string) {
	switch name {
	case "t":
		w.inText = false
	case "p":
		text := strings.TrimSpace(w.para.String())
		w.para.Reset()
		if text == "" {
			return
		}
		if w.depth > 0 {
			w.cell = append(w.cell, text)
			return
		}
		w.blocks = append(w.blocks, text)
	case "tc":
		if w.depth == 1 {
			w.row = append(w.row, strings.Join(w.cell, " "))
		}
	case "tr":
		if w.depth == 1 {
			w.tableRows = append(w.tableRows, w.row)
		}
	case "tbl":
		w.depth--
		if w.depth == 0 {
			w.flushTable()
		}
	}
}

func (w *walker) flushTable() {
	markdown := domain.RenderMarkdownTable(w.tableRows)
	if markdown == "" {
		return
	}
	columns := 0
	for _, row := range w.tableRows {
		columns = max(columns, len(row))
	}
	w.tables = append(w.tables, domain.ExtractedTable{
		Index:    len(w.tables),
		Page:     1,
		Rows:     len(w.tableRows),
		Columns:  columns,
		Markdown: markdown,
	})
	w.blocks = append(w.blocks, markdown)
	w.tableRows = nil
}
