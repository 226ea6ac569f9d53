package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"bordereau/internal/bsd/models"
	id "bordereau/pkg/domain"
	"bordereau/pkg/platform/sentinel"
	txcontext "bordereau/pkg/platform/tx"
)

// Postgres persists document aggregates as one row per document: indexed
// columns for lookups, the full aggregate as JSONB. The version column backs
// the optimistic concurrency check.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema creates the tables. Deployments run proper migrations; tests and
// local setups call EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	readable_id TEXT UNIQUE NOT NULL,
	doc_type TEXT NOT NULL,
	status TEXT NOT NULL,
	version INT NOT NULL,
	grouped_in_id UUID,
	sirets TEXT[] NOT NULL DEFAULT '{}',
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_grouped_in_idx ON documents (grouped_in_id) WHERE grouped_in_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS documents_sirets_idx ON documents USING GIN (sirets);

CREATE TABLE IF NOT EXISTS revision_requests (
	id UUID PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES documents (id),
	status TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS revision_requests_document_idx ON revision_requests (document_id);

CREATE TABLE IF NOT EXISTS company_security_codes (
	siret TEXT PRIMARY KEY,
	code_hash TEXT NOT NULL
);
`

// EnsureSchema applies the schema, for tests and local development.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func siretStrings(d *models.Document) []string {
	participants := d.Participants()
	out := make([]string, 0, len(participants))
	for _, siret := range participants {
		out = append(out, siret.String())
	}
	return out
}

func (s *Postgres) Create(ctx context.Context, d *models.Document) error {
	d.Version = 1
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	var groupedIn any
	if d.GroupedInID != nil {
		groupedIn = d.GroupedInID.String()
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO documents (id, readable_id, doc_type, status, version, grouped_in_id, sirets, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID.String(), d.ReadableID, d.Type, d.Status, d.Version, groupedIn,
		pq.Array(siretStrings(d)), payload, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrVersionConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Postgres) scanDocument(row *sql.Row) (*models.Document, error) {
	var payload []byte
	var version int
	if err := row.Scan(&payload, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	var d models.Document
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	d.Version = version
	return &d, nil
}

func (s *Postgres) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT payload, version FROM documents WHERE id = $1`, docID.String())
	return s.scanDocument(row)
}

func (s *Postgres) GetByReadableID(ctx context.Context, readableID string) (*models.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT payload, version FROM documents WHERE readable_id = $1`, readableID)
	return s.scanDocument(row)
}

func (s *Postgres) Save(ctx context.Context, d *models.Document) error {
	expected := d.Version
	d.Version = expected + 1
	payload, err := json.Marshal(d)
	if err != nil {
		d.Version = expected
		return fmt.Errorf("marshal document: %w", err)
	}
	var groupedIn any
	if d.GroupedInID != nil {
		groupedIn = d.GroupedInID.String()
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE documents
		SET status = $1, version = $2, grouped_in_id = $3, sirets = $4, payload = $5, updated_at = $6
		WHERE id = $7 AND version = $8`,
		d.Status, d.Version, groupedIn, pq.Array(siretStrings(d)), payload, d.UpdatedAt,
		d.ID.String(), expected,
	)
	if err != nil {
		d.Version = expected
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		d.Version = expected
		return fmt.Errorf("update document: %w", err)
	}
	if affected == 0 {
		d.Version = expected
		return sentinel.ErrVersionConflict
	}
	return nil
}

func (s *Postgres) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		var payload []byte
		var version int
		if err := rows.Scan(&payload, &version); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var d models.Document
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
		d.Version = version
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *Postgres) ListChildren(ctx context.Context, parentID id.DocumentID) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT payload, version FROM documents WHERE grouped_in_id = $1 ORDER BY created_at`,
		parentID.String())
}

func (s *Postgres) ListBySiret(ctx context.Context, siret id.Siret) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT payload, version FROM documents WHERE $1 = ANY(sirets) ORDER BY created_at DESC`,
		siret.String())
}

// Revisions exposes the revision side of the store under the
// ports.RevisionStore contract.
func (s *Postgres) Revisions() *PostgresRevisions { return &PostgresRevisions{s: s} }

type PostgresRevisions struct{ s *Postgres }

func (r *PostgresRevisions) Create(ctx context.Context, req *models.RevisionRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal revision: %w", err)
	}
	_, err = r.s.execer(ctx).ExecContext(ctx, `
		INSERT INTO revision_requests (id, document_id, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID.String(), req.DocumentID.String(), req.Status, payload, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

func (r *PostgresRevisions) Get(ctx context.Context, revID id.RevisionID) (*models.RevisionRequest, error) {
	var payload []byte
	err := r.s.execer(ctx).QueryRowContext(ctx,
		`SELECT payload FROM revision_requests WHERE id = $1`, revID.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan revision: %w", err)
	}
	var req models.RevisionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal revision: %w", err)
	}
	return &req, nil
}

func (r *PostgresRevisions) Save(ctx context.Context, req *models.RevisionRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal revision: %w", err)
	}
	res, err := r.s.execer(ctx).ExecContext(ctx, `
		UPDATE revision_requests SET status = $1, payload = $2, updated_at = $3 WHERE id = $4`,
		req.Status, payload, req.UpdatedAt, req.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update revision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update revision: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (r *PostgresRevisions) ListByDocument(ctx context.Context, docID id.DocumentID) ([]*models.RevisionRequest, error) {
	rows, err := r.s.execer(ctx).QueryContext(ctx,
		`SELECT payload FROM revision_requests WHERE document_id = $1 ORDER BY created_at`,
		docID.String())
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var out []*models.RevisionRequest
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		var req models.RevisionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("unmarshal revision: %w", err)
		}
		out = append(out, &req)
	}
	return out, rows.Err()
}

// SetCodeHash provisions an establishment's security code hash.
func (s *Postgres) SetCodeHash(ctx context.Context, siret id.Siret, hash string) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO company_security_codes (siret, code_hash) VALUES ($1, $2)
		ON CONFLICT (siret) DO UPDATE SET code_hash = EXCLUDED.code_hash`,
		siret.String(), hash,
	)
	if err != nil {
		return fmt.Errorf("upsert security code: %w", err)
	}
	return nil
}

func (s *Postgres) GetCodeHash(ctx context.Context, siret id.Siret) (string, error) {
	var hash string
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT code_hash FROM company_security_codes WHERE siret = $1`, siret.String()).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("scan security code: %w", err)
	}
	return hash, nil
}
