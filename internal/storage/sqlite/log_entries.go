package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/untoldecay/projectlog/internal/types"
)

const logColumns = `id, COALESCE(project_id, 0), document_id, mention, location, action,
	confirmed_name, pertinent_text, model, confidence, reasoning, created_at`

// WriteLogEntry appends e and its tags. Tags are de-duplicated within the entry.
func (t *sqliteTx) WriteLogEntry(ctx context.Context, e *types.LogEntry) error {
	var projectID any
	if e.ProjectID != 0 {
		projectID = e.ProjectID
	}
	created := now()
	if !e.CreatedAt.IsZero() {
		created = formatTime(e.CreatedAt)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO log_entries (project_id, document_id, mention, location, action,
			confirmed_name, pertinent_text, model, confidence, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, projectID, e.DocumentID, e.Mention, e.Location, string(e.Action),
		e.ConfirmedName, e.PertinentText, e.Model, e.Confidence, e.Reasoning, created)
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get log entry id: %w", err)
	}

	pos := 0
	for _, tag := range e.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		res, err := t.tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO log_entry_tags (entry_id, tag, position) VALUES (?, ?, ?)
		`, id, tag, pos)
		if err != nil {
			return fmt.Errorf("failed to write log entry tag: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			pos++
		}
	}

	e.ID = id
	e.CreatedAt = parseTime(created)
	return nil
}

func (t *sqliteTx) HasEvidence(ctx context.Context, projectID int64, documentID, pertinentText string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM log_entries
			WHERE project_id = ? AND document_id = ? AND pertinent_text = ?
		)
	`, projectID, documentID, pertinentText).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check evidence: %w", err)
	}
	return exists, nil
}

// GetLogEntries returns a project's log entries, oldest first.
func (s *SQLiteStorage) GetLogEntries(ctx context.Context, projectID int64) ([]*types.LogEntry, error) {
	return s.queryLogEntries(ctx, `WHERE project_id = ?`, projectID)
}

// GetDocumentLogEntries returns every log entry written for a document,
// rejected mentions included.
func (s *SQLiteStorage) GetDocumentLogEntries(ctx context.Context, documentID string) ([]*types.LogEntry, error) {
	return s.queryLogEntries(ctx, `WHERE document_id = ?`, documentID)
}

func (s *SQLiteStorage) queryLogEntries(ctx context.Context, where string, arg any) ([]*types.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+logColumns+` FROM log_entries `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.LogEntry
	byID := make(map[int64]*types.LogEntry)
	for rows.Next() {
		var e types.LogEntry
		var action, created string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.DocumentID, &e.Mention, &e.Location, &action,
			&e.ConfirmedName, &e.PertinentText, &e.Model, &e.Confidence, &e.Reasoning, &created); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Action = types.Action(action)
		e.CreatedAt = parseTime(created)
		entries = append(entries, &e)
		byID[e.ID] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	if err := loadEntryTags(ctx, s.db, where, arg, byID); err != nil {
		return nil, err
	}
	return entries, nil
}

func loadEntryTags(ctx context.Context, db *sql.DB, where string, arg any, byID map[int64]*types.LogEntry) error {
	rows, err := db.QueryContext(ctx, `
		SELECT t.entry_id, t.tag FROM log_entry_tags t
		WHERE t.entry_id IN (SELECT id FROM log_entries `+where+`)
		ORDER BY t.entry_id, t.position
	`, arg)
	if err != nil {
		return fmt.Errorf("failed to query log entry tags: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("failed to scan log entry tag: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.Tags = append(e.Tags, tag)
		}
	}
	return rows.Err()
}
