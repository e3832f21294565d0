package llm

import "strings"

// TruncationMarker is appended whenever input text is cut to fit the model's
// context budget, so truncation is visible in the prompt and in audit logs.
const TruncationMarker = "…(truncated)"

// DefaultMaxInputChars leaves headroom under the model context window for the
// system instruction and the output tokens.
const DefaultMaxInputChars = 15000

// SystemPrompt is the fixed system instruction for every extraction call.
const SystemPrompt = "You are a document analyst that extracts people from documents. " +
	"Extract only facts that are explicitly stated in the text. " +
	"Use null for every field that is not clearly present; never guess or invent values. " +
	"Return ONLY JSON, with no prose and no markdown. " +
	"Enumerate every person mentioned in the document, one entity per person."

// userPromptTemplate describes the exact output shape and per-field guidance.
// The (possibly truncated) document text is appended after it.
const userPromptTemplate = `Extract all people from the document below into JSON of this exact shape:

{"entities": [
  {
    "full_name": "the person's full name, or null",
    "email": "email address, or null",
    "phone_number": "phone number as written, or null",
    "address": "postal address, or null",
    "organisation": "company or institution the person belongs to, or null",
    "role_title": "job title or role, or null",
    "comments": "any other notable free-text facts about the person, or null",
    "id_number": "identifier such as passport or employee number, or null",
    "technology_stack": "technologies or tools the person works with, or null"
  }
]}

Every value must be a string or null. Do not add fields. If no people are mentioned, return {"entities": []}.

Document text:
`

// TruncateInput cuts text to maxChars, preserving the prefix in document
// order, and reports whether a cut happened. The marker is appended on cut.
func TruncateInput(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	if len(text) <= maxChars {
		return text, false
	}
	return text[:maxChars] + "\n" + TruncationMarker, true
}

// BuildUserPrompt embeds the (already truncated) document text after the
// fixed instructional template.
func BuildUserPrompt(documentText string) string {
	var b strings.Builder
	b.WriteString(userPromptTemplate)
	b.WriteString(documentText)
	return b.String()
}
