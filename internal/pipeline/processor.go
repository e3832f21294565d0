// Package pipeline coordinates the per-file document-to-entity flow:
// text extraction, LLM entity extraction, then persistence.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/entity-harvester/backend/internal/entity"
	"github.com/entity-harvester/backend/internal/extract"
	"github.com/entity-harvester/backend/internal/llm"
)

// Storage is the slice of the repository the pipeline needs: one batch insert
// per file, all-or-nothing.
type Storage interface {
	InsertMany(ctx context.Context, es []entity.ExtractedEntity, sourceFilename string, audit entity.ExtractionAudit) ([]entity.StoredEntity, error)
}

// UploadedFile is one file of a batch, already saved to a temporary path by
// the intake layer.
type UploadedFile struct {
	Filename string // original client-side name, used for dispatch and provenance
	Path     string // temporary on-disk location
}

// BatchProcessor is the interface the HTTP layer depends on.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, files []UploadedFile) entity.BatchSummary
}

type Processor struct {
	extractor extract.TextExtractor
	llm       llm.EntityExtractor
	storage   Storage
	logger    *slog.Logger
}

func NewProcessor(extractor extract.TextExtractor, llmClient llm.EntityExtractor, storage Storage, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		extractor: extractor,
		llm:       llmClient,
		storage:   storage,
		logger:    logger,
	}
}

// ProcessBatch runs the pipeline over the files sequentially, in submission
// order. Each file's outcome is independent: any failure is downgraded to a
// failed PerFileResult and processing moves on. Temporary files are removed
// once the whole batch is done; cleanup failures are logged, never escalated.
func (p *Processor) ProcessBatch(ctx context.Context, files []UploadedFile) entity.BatchSummary {
	summary := entity.BatchSummary{
		FilesProcessed: len(files),
		Results:        make([]entity.PerFileResult, 0, len(files)),
	}

	for _, f := range files {
		res := p.processFile(ctx, f)
		if res.Success {
			summary.FilesSuccessful++
			summary.TotalEntities += res.EntityCount
		}
		summary.Results = append(summary.Results, res)
	}

	p.cleanup(files)

	p.logger.Info("pipeline.batch.done",
		"files", summary.FilesProcessed,
		"succeeded", summary.FilesSuccessful,
		"entities", summary.TotalEntities,
	)
	return summary
}

func (p *Processor) processFile(ctx context.Context, f UploadedFile) entity.PerFileResult {
	fail := func(msg string) entity.PerFileResult {
		p.logger.Warn("pipeline.file.failed", "filename", f.Filename, "reason", msg)
		return entity.PerFileResult{Filename: f.Filename, Success: false, Error: msg}
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fail("could not read uploaded file: " + err.Error())
	}

	text, err := p.extractor.Extract(f.Filename, data)
	if err != nil {
		return fail(err.Error())
	}
	if strings.TrimSpace(text) == "" {
		// Not an exception: the file parsed fine but carries nothing usable.
		return fail("no text could be extracted")
	}

	result, err := p.llm.ExtractEntities(ctx, text)
	if err != nil {
		return fail(err.Error())
	}

	// "Nothing found" is a valid outcome, not an error.
	if len(result.Entities) == 0 {
		p.logger.Info("pipeline.file.ok", "filename", f.Filename, "entities", 0)
		return entity.PerFileResult{Filename: f.Filename, Success: true, EntityCount: 0}
	}

	stored, err := p.storage.InsertMany(ctx, result.Entities, f.Filename, result.Audit)
	if err != nil {
		return fail(err.Error())
	}

	p.logger.Info("pipeline.file.ok", "filename", f.Filename, "entities", len(stored))
	return entity.PerFileResult{
		Filename:    f.Filename,
		Success:     true,
		EntityCount: len(stored),
		Entities:    stored,
	}
}

func (p *Processor) cleanup(files []UploadedFile) {
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("pipeline.cleanup.failed", "path", f.Path, "error", err)
		}
	}
}
