package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/entity-harvester/backend/internal/entity"
	"github.com/entity-harvester/backend/internal/repository"
)

// Service is a tiny façade over the repository that produces workbook or CSV
// bytes for exports.
type Service struct {
	repo   repository.EntityRepository
	logger *slog.Logger
}

func NewService(repo repository.EntityRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

var exportHeaders = []string{
	"Full Name",
	"Email",
	"Phone Number",
	"Address",
	"Organisation",
	"Role/Title",
	"ID Number",
	"Technology Stack",
	"Comments",
	"Source File",
	"Extracted At",
}

// exportPageSize bounds how many rows are pulled per repository round trip.
const exportPageSize = 500

func (s *Service) listAll(ctx context.Context) ([]entity.StoredEntity, error) {
	var all []entity.StoredEntity
	for page := 1; ; page++ {
		recs, total, err := s.repo.ListPage(ctx, page, exportPageSize)
		if err != nil {
			return nil, fmt.Errorf("query entities: %w", err)
		}
		all = append(all, recs...)
		if len(recs) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// ExportXLSX returns an XLSX workbook (as bytes) with one row per stored entity.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Entities"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop excelize's default sheet so the workbook only carries ours.
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		for i, v := range entityRow(r) {
			write(i+1, v)
		}
		row++
	}

	// Widen the columns that carry free text.
	_ = f.SetColWidth(sheet, "A", "A", 24) // name
	_ = f.SetColWidth(sheet, "B", "B", 28) // email
	_ = f.SetColWidth(sheet, "C", "D", 22) // phone, address
	_ = f.SetColWidth(sheet, "E", "F", 24) // organisation, role
	_ = f.SetColWidth(sheet, "G", "H", 28) // id number, tech stack
	_ = f.SetColWidth(sheet, "I", "I", 48) // comments
	_ = f.SetColWidth(sheet, "J", "J", 32) // source file
	_ = f.SetColWidth(sheet, "K", "K", 20) // extracted at

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportCSV returns a UTF-8 CSV with the same columns as the workbook export.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	for _, r := range recs {
		if err := w.Write(entityRow(r)); err != nil {
			return nil, fmt.Errorf("csv write: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}

	s.logger.Info("export.csv.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func entityRow(r entity.StoredEntity) []string {
	return []string{
		deref(r.FullName),
		deref(r.Email),
		deref(r.PhoneNumber),
		deref(r.Address),
		deref(r.Organisation),
		deref(r.RoleTitle),
		deref(r.IDNumber),
		deref(r.TechnologyStack),
		deref(r.Comments),
		r.SourceFilename,
		r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
