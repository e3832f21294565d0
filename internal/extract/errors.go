package extract

import (
	"fmt"
	"strings"
)

// UnsupportedTypeError reports a file type outside the supported set.
type UnsupportedTypeError struct {
	Ext       string
	Supported []string
}

func (e *UnsupportedTypeError) Error() string {
	ext := e.Ext
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Sprintf("unsupported file type %q: supported types are %s", ext, strings.Join(e.Supported, ", "))
}

// ExtractionError reports an unreadable or corrupt document. It always carries
// the source filename and the underlying cause.
type ExtractionError struct {
	Filename string
	Cause    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %q: %v", e.Filename, e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}
