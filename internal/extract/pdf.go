package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF concatenates the plain text of every page in document order.
// The pdf package panics on some malformed inputs, so the whole read runs
// under a recover and any failure is re-signaled as ExtractionError.
func (e *extractor) extractPDF(filename string, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("extract.pdf.panic", "filename", filename, "panic", r)
			text = ""
			err = &ExtractionError{Filename: filename, Cause: fmt.Errorf("pdf parse panic: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Filename: filename, Cause: err}
	}

	var sb strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionError{Filename: filename, Cause: fmt.Errorf("page %d: %w", i, err)}
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	result := strings.TrimSpace(sb.String())
	e.logger.Debug("extract.pdf.ok", "filename", filename, "pages", total, "chars", len(result))
	return result, nil
}
