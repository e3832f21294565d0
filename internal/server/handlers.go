package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/entity-harvester/backend/internal/common"
	"github.com/entity-harvester/backend/internal/entity"
	"github.com/entity-harvester/backend/internal/pipeline"
	"github.com/entity-harvester/backend/internal/repository"
)

// Exporter produces downloadable renderings of the stored entities.
type Exporter interface {
	ExportCSV(ctx context.Context) ([]byte, error)
	ExportXLSX(ctx context.Context) ([]byte, error)
}

// Handler holds the collaborators behind the HTTP surface.
type Handler struct {
	processor pipeline.BatchProcessor
	repo      repository.EntityRepository
	exporter  Exporter
	cfg       common.ServerConfig
	logger    *slog.Logger
}

func NewHandler(processor pipeline.BatchProcessor, repo repository.EntityRepository, exporter Exporter, cfg common.ServerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor: processor,
		repo:      repo,
		exporter:  exporter,
		cfg:       cfg,
		logger:    logger,
	}
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleExtract accepts a multipart batch of documents, runs the extraction
// pipeline over them and returns the per-file summary. A failed file never
// fails the request; its outcome is reported inside the summary.
func (h *Handler) HandleExtract(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form with a files field", err)
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return NewBadRequestError("no files provided", nil)
	}
	if h.cfg.MaxBatchFiles > 0 && len(uploads) > h.cfg.MaxBatchFiles {
		return NewBadRequestError(fmt.Sprintf("batch exceeds %d files", h.cfg.MaxBatchFiles), nil)
	}

	maxBytes := int64(h.cfg.MaxUploadMB) << 20
	files := make([]pipeline.UploadedFile, 0, len(uploads))
	for _, fh := range uploads {
		if maxBytes > 0 && fh.Size > maxBytes {
			h.removeAll(files)
			return NewPayloadTooLargeError(fmt.Sprintf("%s exceeds the %d MB upload limit", fh.Filename, h.cfg.MaxUploadMB))
		}
		path, err := h.saveUpload(fh)
		if err != nil {
			h.removeAll(files)
			return NewInternalError("failed to store uploaded file", err)
		}
		files = append(files, pipeline.UploadedFile{Filename: fh.Filename, Path: path})
	}

	reqID := uuid.New().String()
	ctx := common.WithRequestID(c.Request().Context(), reqID)
	start := time.Now()
	summary := h.processor.ProcessBatch(ctx, files)
	h.logger.Info("api.extract.done",
		"req_id", reqID,
		"files", summary.FilesProcessed,
		"entities", summary.TotalEntities,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.CreateTemp(h.cfg.UploadTmpDir, "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (h *Handler) removeAll(files []pipeline.UploadedFile) {
	for _, f := range files {
		_ = os.Remove(f.Path)
	}
}

type listResponse struct {
	Entities []entity.StoredEntity `json:"entities"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

func (h *Handler) HandleListEntities(c echo.Context) error {
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 20)

	recs, total, err := h.repo.ListPage(c.Request().Context(), page, pageSize)
	if err != nil {
		return NewInternalError("failed to list entities", err)
	}
	if recs == nil {
		recs = []entity.StoredEntity{}
	}
	return c.JSON(http.StatusOK, listResponse{
		Entities: recs,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (h *Handler) HandleGetEntity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewBadRequestError("id must be a UUID", err)
	}
	rec, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return NewInternalError("failed to load entity", err)
	}
	if rec == nil {
		return NewNotFoundError("entity", id.String())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) HandleDeleteEntity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewBadRequestError("id must be a UUID", err)
	}
	deleted, err := h.repo.DeleteByID(c.Request().Context(), id)
	if err != nil {
		return NewInternalError("failed to delete entity", err)
	}
	if !deleted {
		return NewNotFoundError("entity", id.String())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) HandleSearchEntities(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return NewBadRequestError("q query parameter is required", nil)
	}
	limit := intQuery(c, "limit", 20)

	recs, err := h.repo.SearchByText(c.Request().Context(), q, limit)
	if err != nil {
		return NewInternalError("search failed", err)
	}
	if recs == nil {
		recs = []entity.StoredEntity{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entities": recs,
		"count":    len(recs),
	})
}

func (h *Handler) HandleExportEntities(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "csv"
	}

	ctx := c.Request().Context()
	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case "csv":
		data, err := h.exporter.ExportCSV(ctx)
		if err != nil {
			return NewInternalError("export failed", err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="entities-%s.csv"`, stamp))
		return c.Blob(http.StatusOK, "text/csv", data)
	case "xlsx":
		data, err := h.exporter.ExportXLSX(ctx)
		if err != nil {
			return NewInternalError("export failed", err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="entities-%s.xlsx"`, stamp))
		return c.Blob(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		return NewBadRequestError("format must be csv or xlsx", nil)
	}
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
