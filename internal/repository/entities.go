package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/entity-harvester/backend/internal/entity"
)

// PersistenceError wraps storage collaborator failures so callers can
// distinguish them from input or model errors.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// EntityRepository is the storage collaborator for extracted entities.
// Records are append-only facts: inserted once, never updated.
type EntityRepository interface {
	InsertOne(ctx context.Context, e entity.ExtractedEntity, sourceFilename string, audit entity.ExtractionAudit) (entity.StoredEntity, error)
	InsertMany(ctx context.Context, es []entity.ExtractedEntity, sourceFilename string, audit entity.ExtractionAudit) ([]entity.StoredEntity, error)
	ListPage(ctx context.Context, page, pageSize int) ([]entity.StoredEntity, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.StoredEntity, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
	SearchByText(ctx context.Context, query string, limit int) ([]entity.StoredEntity, error)
}

type entityRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func NewEntityRepository(db *sql.DB, dialect Dialect, logger *slog.Logger) EntityRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &entityRepository{db: db, dialect: dialect, logger: logger}
}

const entityColumns = `id, source_filename, full_name, email, phone_number, address,
	organisation, role_title, comments, id_number, technology_stack, audit, created_at, updated_at`

const insertSQL = `INSERT INTO entities (` + entityColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// rebind converts ?-style placeholders to the dialect's native style.
func (r *entityRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *entityRepository) InsertOne(ctx context.Context, e entity.ExtractedEntity, sourceFilename string, audit entity.ExtractionAudit) (entity.StoredEntity, error) {
	stored, err := r.InsertMany(ctx, []entity.ExtractedEntity{e}, sourceFilename, audit)
	if err != nil {
		return entity.StoredEntity{}, err
	}
	return stored[0], nil
}

// InsertMany persists one file's entity batch in a single transaction:
// either every entity of the file is stored or none is.
func (r *entityRepository) InsertMany(ctx context.Context, es []entity.ExtractedEntity, sourceFilename string, audit entity.ExtractionAudit) ([]entity.StoredEntity, error) {
	auditJSON, err := json.Marshal(audit)
	if err != nil {
		return nil, &PersistenceError{Op: "insert", Cause: fmt.Errorf("marshal audit: %w", err)}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceError{Op: "insert", Cause: err}
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			r.logger.Warn("entities.insert.rollback_error", "error", rerr)
		}
	}()

	now := time.Now().UTC()
	stored := make([]entity.StoredEntity, 0, len(es))
	query := r.rebind(insertSQL)
	for _, e := range es {
		rec := entity.StoredEntity{
			ID:              uuid.New(),
			SourceFilename:  sourceFilename,
			ExtractedEntity: e,
			Audit:           audit,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if _, err := tx.ExecContext(ctx, query,
			rec.ID.String(), rec.SourceFilename,
			e.FullName, e.Email, e.PhoneNumber, e.Address,
			e.Organisation, e.RoleTitle, e.Comments, e.IDNumber, e.TechnologyStack,
			string(auditJSON), rec.CreatedAt, rec.UpdatedAt,
		); err != nil {
			return nil, &PersistenceError{Op: "insert", Cause: err}
		}
		stored = append(stored, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Op: "insert", Cause: err}
	}
	r.logger.Info("entities.insert.ok", "source", sourceFilename, "count", len(stored))
	return stored, nil
}

func (r *entityRepository) ListPage(ctx context.Context, page, pageSize int) ([]entity.StoredEntity, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&total); err != nil {
		return nil, 0, &PersistenceError{Op: "count", Cause: err}
	}

	query := r.rebind(`SELECT ` + entityColumns + ` FROM entities
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "list", Cause: err}
	}
	defer rows.Close()

	out, err := scanEntities(rows)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "list", Cause: err}
	}
	return out, total, nil
}

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.StoredEntity, error) {
	query := r.rebind(`SELECT ` + entityColumns + ` FROM entities WHERE id = ?`)
	rows, err := r.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, &PersistenceError{Op: "get", Cause: err}
	}
	defer rows.Close()

	out, err := scanEntities(rows)
	if err != nil {
		return nil, &PersistenceError{Op: "get", Cause: err}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (r *entityRepository) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	query := r.rebind(`DELETE FROM entities WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return false, &PersistenceError{Op: "delete", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &PersistenceError{Op: "delete", Cause: err}
	}
	return n > 0, nil
}

// SearchByText does a case-insensitive partial match over the name, email,
// organisation and role fields.
func (r *entityRepository) SearchByText(ctx context.Context, query string, limit int) ([]entity.StoredEntity, error) {
	if limit < 1 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	stmt := r.rebind(`SELECT ` + entityColumns + ` FROM entities
		WHERE lower(coalesce(full_name, '')) LIKE ?
		   OR lower(coalesce(email, '')) LIKE ?
		   OR lower(coalesce(organisation, '')) LIKE ?
		   OR lower(coalesce(role_title, '')) LIKE ?
		ORDER BY created_at DESC, id LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, stmt, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "search", Cause: err}
	}
	defer rows.Close()

	out, err := scanEntities(rows)
	if err != nil {
		return nil, &PersistenceError{Op: "search", Cause: err}
	}
	return out, nil
}

func scanEntities(rows *sql.Rows) ([]entity.StoredEntity, error) {
	var out []entity.StoredEntity
	for rows.Next() {
		var (
			rec      entity.StoredEntity
			idStr    string
			auditRaw string
		)
		if err := rows.Scan(
			&idStr, &rec.SourceFilename,
			&rec.FullName, &rec.Email, &rec.PhoneNumber, &rec.Address,
			&rec.Organisation, &rec.RoleTitle, &rec.Comments, &rec.IDNumber, &rec.TechnologyStack,
			&auditRaw, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored id %q: %w", idStr, err)
		}
		rec.ID = id
		if err := json.Unmarshal([]byte(auditRaw), &rec.Audit); err != nil {
			return nil, fmt.Errorf("decode audit payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
