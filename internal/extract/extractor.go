// Package extract provides text extraction from document formats. Extraction
// failures are terminal for ingestion: a document that cannot be parsed today
// will not parse tomorrow, so callers must not retry them.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lu4p/cat"
)

// ExtractionError marks a document as unparseable. It is a terminal error:
// ingestion records failed_extraction and never retries.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err is (or wraps) an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
// Plain text files (.txt, .md, .rst, unknown extensions) are returned as-is
// after UTF-8 validation. PDF, DOCX, ODT, RTF, and XLSX are decoded from
// their binary formats. Parse failures are returned as *ExtractionError.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	// lu4p/cat reads the file itself for the OpenDocument and RTF paths.
	switch ext {
	case ".odt", ".rtf":
		text, err := cat.File(path)
		if err != nil {
			return "", &ExtractionError{Path: path, Err: err}
		}
		return text, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}

	var text string
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".xlsx":
		text, err = extractExcel(content)
	default:
		// .txt, .md, .rst, and anything unrecognized: treat as plain text.
		text, err = extractPlain(content)
	}
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	return text, nil
}

// Supported reports whether ext (with or without leading dot) is a format this
// extractor decodes from a binary container. Plain text always works.
func Supported(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf", "docx", "odt", "rtf", "xlsx", "txt", "md", "rst":
		return true
	}
	return false
}
