package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps documents and their revision history in Postgres. Append
// order is tracked by a sequence column rather than the edit timestamp so that
// two writes in the same clock tick still order deterministically.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cap    int
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger, revisionCap int) *PostgresStore {
	if revisionCap <= 0 {
		revisionCap = DefaultRevisionCap
	}
	return &PostgresStore{
		pool:   pool,
		cap:    revisionCap,
		logger: logger.With(slog.String("component", "store_postgres")),
	}
}

var _ DocumentStore = (*PostgresStore)(nil)

// Migrate bootstraps the schema. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL DEFAULT '',
	edited_by TEXT NOT NULL DEFAULT '',
	edited_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS document_revisions (
	seq         BIGSERIAL PRIMARY KEY,
	id          UUID NOT NULL UNIQUE,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	content     TEXT NOT NULL,
	edited_by   TEXT NOT NULL,
	edited_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_revisions_doc ON document_revisions(document_id, seq);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate document store: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	doc := Document{ID: documentID}
	err := s.pool.QueryRow(ctx,
		`SELECT content, edited_by, edited_at FROM documents WHERE id = $1`,
		documentID,
	).Scan(&doc.Content, &doc.EditedBy, &doc.EditedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	revs, err := s.ListRevisions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc.Revisions = revs
	return &doc, nil
}

func (s *PostgresStore) SetDocument(ctx context.Context, documentID, content, editedBy string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (id, content, edited_by, edited_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET content = $2, edited_by = $3, edited_at = $4`,
		documentID, content, editedBy, now,
	); err != nil {
		return err
	}
	if _, err := s.appendRevision(ctx, tx, documentID, content, editedBy, now, true); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) RecordRevision(ctx context.Context, documentID, content, editedBy string) (*ContentRevision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		documentID,
	); err != nil {
		return nil, err
	}
	rev, err := s.appendRevision(ctx, tx, documentID, content, editedBy, time.Now(), true)
	if err != nil {
		return nil, err
	}
	return rev, tx.Commit(ctx)
}

func (s *PostgresStore) ListRevisions(ctx context.Context, documentID string) ([]ContentRevision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, content, edited_by, edited_at
		 FROM document_revisions WHERE document_id = $1 ORDER BY seq ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	revs := make([]ContentRevision, 0)
	for rows.Next() {
		var r ContentRevision
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Content, &r.EditedBy, &r.EditedAt); err != nil {
			return nil, err
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

func (s *PostgresStore) Restore(ctx context.Context, documentID, revisionID, editedBy string) (*ContentRevision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var content string
	err = tx.QueryRow(ctx,
		`SELECT content FROM document_revisions WHERE document_id = $1 AND id = $2`,
		documentID, revisionID,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`UPDATE documents SET content = $2, edited_by = $3, edited_at = $4 WHERE id = $1`,
		documentID, content, editedBy, now,
	); err != nil {
		return nil, err
	}
	// Restore appends unconditionally; it is its own history entry.
	rev, err := s.appendRevision(ctx, tx, documentID, content, editedBy, now, false)
	if err != nil {
		return nil, err
	}
	return rev, tx.Commit(ctx)
}

// appendRevision inserts one revision inside tx and trims the document's
// history to the cap. Returns nil when the write deduplicated against the head.
func (s *PostgresStore) appendRevision(ctx context.Context, tx pgx.Tx, documentID, content, editedBy string, at time.Time, dedupe bool) (*ContentRevision, error) {
	if dedupe {
		var head string
		err := tx.QueryRow(ctx,
			`SELECT content FROM document_revisions WHERE document_id = $1 ORDER BY seq DESC LIMIT 1`,
			documentID,
		).Scan(&head)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if err == nil && head == content {
			return nil, nil
		}
	}

	rev := ContentRevision{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Content:    content,
		EditedBy:   editedBy,
		EditedAt:   at,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO document_revisions (id, document_id, content, edited_by, edited_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rev.ID, rev.DocumentID, rev.Content, rev.EditedBy, rev.EditedAt,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM document_revisions
		 WHERE document_id = $1 AND seq NOT IN (
			SELECT seq FROM document_revisions WHERE document_id = $1 ORDER BY seq DESC LIMIT $2
		 )`,
		documentID, s.cap,
	); err != nil {
		return nil, err
	}
	return &rev, nil
}
