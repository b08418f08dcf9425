package docx

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Statement of financial position</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">As at 31 December </w:t></w:r><w:r><w:t>2024</w:t></w:r></w:p>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>Item</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2024</w:t></w:r></w:p></w:tc></w:tr>
      <w:tr><w:tc><w:p><w:r><w:t>Cash</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>1|200</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
    <w:p/>
    <w:p><w:r><w:t>Notes follow.</w:t></w:r></w:p>
  </w:body>
</w:document>`

func buildDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestParseParagraphsAndTables(t *testing.T) {
	data := buildDocx(t, map[string]string{documentPart: documentXML})
	out, err := NewParser().Parse("fs.docx", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(out.Tables) != 1 {
		t.Fatalf("expected one table, got %d", len(out.Tables))
	}
	table := "| Item | 2024 |\n| --- | --- |\n| Cash | 1/200 |"
	if out.Tables[0].Markdown != table {
		t.Fatalf("unexpected table markdown:\n%s", out.Tables[0].Markdown)
	}
	want := strings.Join([]string{
		"Statement of financial position",
		"As at 31 December 2024",
		table,
		"Notes follow.",
	}, "\n\n")
	if out.FullText != want {
		t.Fatalf("unexpected text:\n%s", out.FullText)
	}
}

func TestParseMissingDocumentPart(t *testing.T) {
	data := buildDocx(t, map[string]string{"word/styles.xml": "<styles/>"})
	if _, err := NewParser().Parse("x.docx", data); err == nil {
		t.Fatalf("expected error for missing document part")
	}
}

func TestParseRejectsNonZip(t *testing.T) {
	if _, err := NewParser().Parse("x.docx", []byte("plain")); err == nil {
		t.Fatalf("expected error for non-zip input")
	}
}
