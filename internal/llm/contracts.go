package llm

import (
	"context"

	"github.com/entity-harvester/backend/internal/entity"
)

// ExtractionResult is the outcome of one LLM call: the validated entities in
// model order plus the audit payload kept for traceability.
type ExtractionResult struct {
	Entities []entity.ExtractedEntity
	Audit    entity.ExtractionAudit
}

// EntityExtractor is the interface the pipeline depends on.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, documentText string) (ExtractionResult, error)
}
