package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

const documentColumns = `id, path, name, type, content_hash, status, text, comprehensive, processed_at, created_at`

// UpsertDocument inserts or refreshes a document row. An existing
// comprehensive side-record is kept when d carries none.
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, d *types.Document) error {
	if d.Status == "" {
		d.Status = types.DocPending
	}
	var processed any
	if d.ProcessedAt != nil {
		processed = formatTime(*d.ProcessedAt)
	}
	created := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, path, name, type, content_hash, status, text, comprehensive, processed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			path = excluded.path,
			name = excluded.name,
			type = excluded.type,
			content_hash = excluded.content_hash,
			status = excluded.status,
			text = excluded.text,
			comprehensive = CASE WHEN excluded.comprehensive = '' THEN documents.comprehensive ELSE excluded.comprehensive END,
			processed_at = COALESCE(excluded.processed_at, documents.processed_at)
	`, d.ID, d.Path, d.Name, d.Type, d.ContentHash, d.Status, d.Text, d.Comprehensive, processed, created)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	var stored string
	if err := s.db.QueryRowContext(ctx, `SELECT created_at FROM documents WHERE id = ?`, d.ID).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	d.CreatedAt = parseTime(stored)
	return nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return d, err
}

// ListDocuments returns documents ordered by path. Text is not loaded.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error) {
	q := `SELECT id, path, name, type, content_hash, status, '', comprehensive, processed_at, created_at FROM documents`
	var args []any
	if filter.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	q += ` ORDER BY path`
	if filter.Limit > 0 {
		q += limitClause
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDocumentStatus updates the status; terminal statuses stamp processed_at.
func (s *SQLiteStorage) SetDocumentStatus(ctx context.Context, id, status string) error {
	var processed any
	if status == types.DocProcessed || status == types.DocNoMentions {
		processed = now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, processed_at = COALESCE(?, processed_at) WHERE id = ?
	`, status, processed, id)
	if err != nil {
		return fmt.Errorf("failed to set document status: %w", err)
	}
	return requireRow(res, "document "+id)
}

func (s *SQLiteStorage) SetComprehensive(ctx context.Context, id, data string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET comprehensive = ? WHERE id = ?`, data, id)
	if err != nil {
		return fmt.Errorf("failed to store comprehensive extraction: %w", err)
	}
	return requireRow(res, "document "+id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*types.Document, error) {
	var d types.Document
	var processed sql.NullString
	var created string
	err := row.Scan(&d.ID, &d.Path, &d.Name, &d.Type, &d.ContentHash, &d.Status, &d.Text, &d.Comprehensive, &processed, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	if processed.Valid {
		t := parseTime(processed.String)
		d.ProcessedAt = &t
	}
	d.CreatedAt = parseTime(created)
	return &d, nil
}
