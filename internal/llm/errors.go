package llm

import "fmt"

// CallError reports a transport or provider level failure: non-2xx status,
// network error, or a response body that is not a usable completion payload.
type CallError struct {
	StatusCode int
	Message    string
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm call failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm call failed: %s", e.Message)
}

// ResponseError reports model output that violates the extraction output
// contract. The excerpt is bounded so logs stay readable; it is diagnostic
// only and never re-parsed.
type ResponseError struct {
	Reason  string
	Excerpt string
}

func (e *ResponseError) Error() string {
	if e.Excerpt != "" {
		return fmt.Sprintf("malformed model response: %s: %q", e.Reason, e.Excerpt)
	}
	return fmt.Sprintf("malformed model response: %s", e.Reason)
}
