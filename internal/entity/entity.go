package entity

import (
	"time"

	"github.com/google/uuid"
)

// ExtractedEntity is one person record as reported by the model, after
// normalization. Every field is independently nullable: nil means the model
// had nothing to say, which is distinct from an empty string (empty and
// whitespace-only values normalize to nil).
type ExtractedEntity struct {
	FullName        *string `json:"full_name"`
	Email           *string `json:"email"`
	PhoneNumber     *string `json:"phone_number"`
	Address         *string `json:"address"`
	Organisation    *string `json:"organisation"`
	RoleTitle       *string `json:"role_title"`
	Comments        *string `json:"comments"`
	IDNumber        *string `json:"id_number"`
	TechnologyStack *string `json:"technology_stack"`
}

// ExtractionAudit is the raw metadata of one LLM call, retained for
// traceability. It is stored alongside the entities and never re-parsed.
type ExtractionAudit struct {
	Model            string `json:"model"`
	InputChars       int    `json:"input_chars"`
	RawResponse      string `json:"raw_response"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	FinishReason     string `json:"finish_reason"`
}

// StoredEntity is an ExtractedEntity with server-assigned identity and
// provenance. Owned by the repository; never mutated after insert.
type StoredEntity struct {
	ID             uuid.UUID `json:"id"`
	SourceFilename string    `json:"source_filename"`
	ExtractedEntity
	Audit     ExtractionAudit `json:"audit"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PerFileResult is the outcome of processing a single uploaded file.
type PerFileResult struct {
	Filename    string         `json:"filename"`
	Success     bool           `json:"success"`
	EntityCount int            `json:"entity_count"`
	Entities    []StoredEntity `json:"entities,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// BatchSummary aggregates the per-file results of one upload batch.
type BatchSummary struct {
	FilesProcessed  int             `json:"files_processed"`
	FilesSuccessful int             `json:"files_successful"`
	TotalEntities   int             `json:"total_entities_extracted"`
	Results         []PerFileResult `json:"results"`
}
