package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/entity-harvester/backend/internal/common"
	"github.com/entity-harvester/backend/internal/export"
	"github.com/entity-harvester/backend/internal/extract"
	"github.com/entity-harvester/backend/internal/llm/openai"
	"github.com/entity-harvester/backend/internal/pipeline"
	"github.com/entity-harvester/backend/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir   = flag.String("dir", "", "directory to process documents from (required)")
		out   = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "entities.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		printError("Error: OPENAI_API_KEY is required\n")
		os.Exit(1)
	}

	dsn := cfg.Database.DSN
	if *inmem {
		dsn = ":memory:"
	}
	if dsn == "" {
		printError("Error: DB_URL is required unless --inmem is set\n")
		os.Exit(1)
	}

	db, dialect, err := repository.Open(ctx, repository.Config{DSN: dsn}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	repo := repository.NewEntityRepository(db, dialect, logger)
	extractor := extract.NewExtractor(logger)
	llmClient := openai.NewClient(openai.Config{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
		MaxInputChars: cfg.LLM.MaxInputChars,
	}, logger)
	processor := pipeline.NewProcessor(extractor, llmClient, repo, logger)

	files, err := collectDocuments(*dir)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		printError("No supported documents found in %s\n", *dir)
		os.Exit(1)
	}
	logger.Info("starting batch", "dir", *dir, "files", len(files))

	summary := processor.ProcessBatch(ctx, files)

	logger.Info("exporting to XLSX", "output", *out)
	exportService := export.NewService(repo, logger)
	xlsxBytes, err := exportService.ExportXLSX(ctx)
	if err != nil {
		logger.Error("failed to export entities", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files processed: %d\n", summary.FilesProcessed)
	fmt.Printf("- Files successful: %d\n", summary.FilesSuccessful)
	fmt.Printf("- Entities extracted: %d\n", summary.TotalEntities)
	fmt.Printf("- Output: %s\n", *out)
	for _, r := range summary.Results {
		if !r.Success {
			fmt.Printf("- FAILED %s: %s\n", r.Filename, r.Error)
		}
	}
}

// collectDocuments walks dir and stages every supported document for the
// pipeline. Files are copied so the pipeline's temp cleanup never touches
// the originals.
func collectDocuments(dir string) ([]pipeline.UploadedFile, error) {
	var files []pipeline.UploadedFile
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		supported := false
		for _, s := range extract.SupportedExtensions {
			if ext == s {
				supported = true
				break
			}
		}
		if !supported {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tmp, err := os.CreateTemp("", "batch-*"+ext)
		if err != nil {
			return err
		}
		if _, err := tmp.Write(data); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		files = append(files, pipeline.UploadedFile{
			Filename: filepath.Base(path),
			Path:     tmp.Name(),
		})
		return nil
	})
	return files, err
}
