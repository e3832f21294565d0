package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractDOCX pulls the raw text out of the word/document.xml part of the
// DOCX container. Runs of <w:t> text are collected; paragraph ends and
// explicit breaks become newlines. All styling is discarded.
func (e *extractor) extractDOCX(filename string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Filename: filename, Cause: fmt.Errorf("open docx container: %w", err)}
	}

	var docPart *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docPart = f
			break
		}
	}
	if docPart == nil {
		return "", &ExtractionError{Filename: filename, Cause: errors.New("missing word/document.xml")}
	}

	rc, err := docPart.Open()
	if err != nil {
		return "", &ExtractionError{Filename: filename, Cause: fmt.Errorf("open document part: %w", err)}
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			e.logger.Warn("extract.docx.close_error", "filename", filename, "error", cerr)
		}
	}()

	text, err := collectDocumentText(rc)
	if err != nil {
		return "", &ExtractionError{Filename: filename, Cause: fmt.Errorf("parse document xml: %w", err)}
	}

	result := strings.TrimSpace(text)
	if result == "" {
		// Valid but empty; the caller decides what that means.
		e.logger.Warn("extract.docx.empty_text", "filename", filename)
	}
	e.logger.Debug("extract.docx.ok", "filename", filename, "chars", len(result))
	return result, nil
}

// collectDocumentText streams the WordprocessingML body and flattens it to
// plain text. Only w:t character runs carry text; w:p and w:br mark breaks.
func collectDocumentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br", "cr":
				sb.WriteString("\n")
			case "tab":
				sb.WriteString("\t")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
