package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtract_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
}

func TestExtract_UnknownExtensionTreatedAsPlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.log")
	if err := os.WriteFile(path, []byte("log line"), 0644); err != nil {
		t.Fatal(err)
	}
	text, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "log line" {
		t.Errorf("text = %q", text)
	}
}

func TestExtract_InvalidUTF8Replaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte{0x68, 0x69, 0xff, 0xfe}, 0644); err != nil {
		t.Fatal(err)
	}
	text, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if text == "" || text[:2] != "hi" {
		t.Errorf("text = %q", text)
	}
}

func TestExtract_MissingFileIsExtractionError(t *testing.T) {
	_, err := NewExtractor().Extract(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsExtractionError(err) {
		t.Errorf("expected ExtractionError, got %T", err)
	}
	var ee *ExtractionError
	if !errors.As(err, &ee) || ee.Path == "" {
		t.Error("ExtractionError should carry the path")
	}
}

func TestExtract_BadPDFIsExtractionError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, []byte("not a pdf at all"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewExtractor().Extract(path)
	if err == nil {
		t.Fatal("expected error for corrupt PDF")
	}
	if !IsExtractionError(err) {
		t.Errorf("expected ExtractionError, got %T", err)
	}
}

func TestExtract_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	docXML := `<?xml version="1.0"?><w:document><w:body>` +
		`<w:p w:rsidR="00A"><w:r><w:t>Hello</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">docx world</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	if _, err := w.Write([]byte(docXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.docx")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	text, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Hello docx world" {
		t.Errorf("text = %q", text)
	}
}

func TestExtract_XLSX(t *testing.T) {
	wb := excelize.NewFile()
	cells := []struct {
		axis  string
		value any
	}{
		{"A1", "part"}, {"B1", "qty"},
		{"A2", "bolts"}, {"B2", 42},
	}
	for _, c := range cells {
		if err := wb.SetCellValue("Sheet1", c.axis, c.value); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := wb.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.xlsx")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	text, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "part\tqty\nbolts\t42" {
		t.Errorf("text = %q", text)
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", "docx", ".txt", "xlsx", ".odt", "rtf", ".md"} {
		if !Supported(ext) {
			t.Errorf("Supported(%q) = false", ext)
		}
	}
	if Supported(".exe") {
		t.Error("Supported(.exe) should be false")
	}
}
