package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-harvester/backend/internal/common"
	"github.com/entity-harvester/backend/internal/entity"
	"github.com/entity-harvester/backend/internal/pipeline"
	"github.com/entity-harvester/backend/internal/repository"
)

func strp(s string) *string { return &s }

type stubProcessor struct {
	gotFiles []pipeline.UploadedFile
	summary  entity.BatchSummary
}

func (s *stubProcessor) ProcessBatch(ctx context.Context, files []pipeline.UploadedFile) entity.BatchSummary {
	s.gotFiles = files
	for _, f := range files {
		_ = os.Remove(f.Path)
	}
	return s.summary
}

type stubExporter struct {
	csv  []byte
	xlsx []byte
	err  error
}

func (s *stubExporter) ExportCSV(ctx context.Context) ([]byte, error)  { return s.csv, s.err }
func (s *stubExporter) ExportXLSX(ctx context.Context) ([]byte, error) { return s.xlsx, s.err }

func newTestServer(t *testing.T, proc pipeline.BatchProcessor, exp Exporter) (*httptest.Server, repository.EntityRepository) {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := repository.Open(ctx, repository.Config{DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.EnsureSchema(ctx, db))
	repo := repository.NewEntityRepository(db, dialect, nil)

	cfg := common.ServerConfig{
		UploadTmpDir:  t.TempDir(),
		MaxUploadMB:   1,
		MaxBatchFiles: 3,
	}
	h := NewHandler(proc, repo, exp, cfg, nil)
	srv := httptest.NewServer(NewEcho(h))
	t.Cleanup(srv.Close)
	return srv, repo
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeError(t *testing.T, resp *http.Response) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	return apiErr
}

func TestHandleExtract(t *testing.T) {
	proc := &stubProcessor{summary: entity.BatchSummary{
		FilesProcessed:  1,
		FilesSuccessful: 1,
		TotalEntities:   2,
		Results: []entity.PerFileResult{
			{Filename: "cv.pdf", Success: true, EntityCount: 2},
		},
	}}
	srv, _ := newTestServer(t, proc, &stubExporter{})

	body, ctype := multipartBody(t, map[string][]byte{"cv.pdf": []byte("%PDF-fake")})
	resp, err := http.Post(srv.URL+"/api/documents/extract", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum entity.BatchSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Equal(t, 1, sum.FilesProcessed)
	assert.Equal(t, 2, sum.TotalEntities)

	require.Len(t, proc.gotFiles, 1)
	assert.Equal(t, "cv.pdf", proc.gotFiles[0].Filename)
}

func TestHandleExtractNoFiles(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{}, &stubExporter{})

	body, ctype := multipartBody(t, nil)
	resp, err := http.Post(srv.URL+"/api/documents/extract", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, resp).Code)
}

func TestHandleExtractTooManyFiles(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{}, &stubExporter{})

	body, ctype := multipartBody(t, map[string][]byte{
		"a.pdf": []byte("x"), "b.pdf": []byte("x"), "c.pdf": []byte("x"), "d.pdf": []byte("x"),
	})
	resp, err := http.Post(srv.URL+"/api/documents/extract", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleExtractOversizedFile(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{}, &stubExporter{})

	body, ctype := multipartBody(t, map[string][]byte{"big.pdf": bytes.Repeat([]byte("x"), 2<<20)})
	resp, err := http.Post(srv.URL+"/api/documents/extract", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, resp).Code)
}

func seedEntity(t *testing.T, repo repository.EntityRepository, name string) entity.StoredEntity {
	t.Helper()
	stored, err := repo.InsertOne(context.Background(),
		entity.ExtractedEntity{FullName: strp(name), Organisation: strp("Acme")},
		"cv.pdf", entity.ExtractionAudit{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	return stored
}

func TestHandleListEntities(t *testing.T) {
	srv, repo := newTestServer(t, &stubProcessor{}, &stubExporter{})
	seedEntity(t, repo, "Jane Doe")
	seedEntity(t, repo, "John Roe")

	resp, err := http.Get(srv.URL + "/api/entities?page=1&page_size=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out.Total)
	assert.Len(t, out.Entities, 1)
	assert.Equal(t, 1, out.PageSize)
}

func TestHandleGetEntity(t *testing.T) {
	srv, repo := newTestServer(t, &stubProcessor{}, &stubExporter{})
	stored := seedEntity(t, repo, "Jane Doe")

	resp, err := http.Get(srv.URL + "/api/entities/" + stored.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got entity.StoredEntity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, "Jane Doe", *got.FullName)
}

func TestHandleGetEntityNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{}, &stubExporter{})

	resp, err := http.Get(srv.URL + "/api/entities/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Code)
}

func TestHandleGetEntityBadID(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{}, &stubExporter{})

	resp, err := http.Get(srv.URL + "/api/entities/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleDeleteEntity(t *testing.T) {
	srv, repo := newTestServer(t, &stubProcessor{}, &stubExporter{})
	stored := seedEntity(t, repo, "Jane Doe")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/entities/"+stored.ID.String(), nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "second delete reports not found")
}

func TestHandleSearchEntities(t *testing.T) {
	srv, repo := newTestServer(t, &stubProcessor{}, &stubExporter{})
	seedEntity(t, repo, "Jane Doe")
	seedEntity(t, repo, "John Roe")

	resp, err := http.Get(srv.URL + "/api/entities/search?q=jane")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Entities []entity.StoredEntity `json:"entities"`
		Count    int                   `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "Jane Doe", *out.Entities[0].FullName)
}

func TestHandleSearchEntitiesMissingQuery(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{}, &stubExporter{})

	resp, err := http.Get(srv.URL + "/api/entities/search")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleExportEntities(t *testing.T) {
	exp := &stubExporter{csv: []byte("Full Name\n"), xlsx: []byte{0x50, 0x4b}}
	srv, _ := newTestServer(t, &stubProcessor{}, exp)

	resp, err := http.Get(srv.URL + "/api/entities/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")

	resp, err = http.Get(srv.URL + "/api/entities/export?format=xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	resp, err = http.Get(srv.URL + "/api/entities/export?format=pdf")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{}, &stubExporter{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
