// Package extract turns uploaded document bytes into plain text.
//
// Dispatch is purely on the declared file extension; the two supported
// formats are PDF (page-based) and DOCX (flowing text container). Styling is
// always discarded.
package extract

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// SupportedExtensions lists the document types the extractor accepts.
var SupportedExtensions = []string{".pdf", ".docx"}

// TextExtractor produces plain text from a file's bytes and declared type.
type TextExtractor interface {
	// Extract returns the document text, which may be empty after trimming.
	// Failures are UnsupportedTypeError or ExtractionError, never anything else.
	Extract(filename string, data []byte) (string, error)
}

type extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &extractor{logger: logger}
}

func (e *extractor) Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return e.extractPDF(filename, data)
	case ".docx":
		return e.extractDOCX(filename, data)
	default:
		return "", &UnsupportedTypeError{Ext: ext, Supported: SupportedExtensions}
	}
}
