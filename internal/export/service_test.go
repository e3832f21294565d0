package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/entity-harvester/backend/internal/entity"
	"github.com/entity-harvester/backend/internal/repository"
)

func strp(s string) *string { return &s }

func newSeededService(t *testing.T, n int) *Service {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := repository.Open(ctx, repository.Config{DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.EnsureSchema(ctx, db))
	repo := repository.NewEntityRepository(db, dialect, nil)

	for i := 0; i < n; i++ {
		_, err := repo.InsertOne(ctx, entity.ExtractedEntity{
			FullName:     strp("Jane Doe"),
			Email:        strp("jane@acme.com"),
			Organisation: strp("Acme Corp"),
		}, "cv.pdf", entity.ExtractionAudit{Model: "gpt-4o-mini"})
		require.NoError(t, err)
	}
	return NewService(repo, nil)
}

func TestExportCSV(t *testing.T) {
	svc := newSeededService(t, 2)

	out, err := svc.ExportCSV(context.Background())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per entity")
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, "Jane Doe", rows[1][0])
	assert.Equal(t, "jane@acme.com", rows[1][1])
	assert.Equal(t, "", rows[1][2], "absent fields export as empty cells")
	assert.Equal(t, "cv.pdf", rows[1][9])
}

func TestExportCSVEmpty(t *testing.T) {
	svc := newSeededService(t, 0)

	out, err := svc.ExportCSV(context.Background())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}

func TestExportXLSX(t *testing.T) {
	svc := newSeededService(t, 3)

	out, err := svc.ExportXLSX(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Entities")
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus one row per entity")
	assert.Equal(t, "Full Name", rows[0][0])
	assert.Equal(t, "Jane Doe", rows[1][0])
	assert.Equal(t, "Acme Corp", rows[1][4])
}
