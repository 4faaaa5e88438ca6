package sqlite

import (
	"context"
	"fmt"

	"github.com/untoldecay/projectlog/internal/types"
)

const limitClause = " LIMIT ?"

// AddEvent appends a processing event.
func (s *SQLiteStorage) AddEvent(ctx context.Context, e *types.ProcessingEvent) error {
	created := now()
	if !e.CreatedAt.IsZero() {
		created = formatTime(e.CreatedAt)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_events (document_id, stage, mention, action, project_id,
			confidence, reasoning, notes, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.DocumentID, e.Stage, e.Mention, e.Action, e.ProjectID,
		e.Confidence, e.Reasoning, e.Notes, e.Raw, created)
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event id: %w", err)
	}
	e.ID = id
	e.CreatedAt = parseTime(created)
	return nil
}

// GetEvents returns the event history for a document in insertion order.
// A positive limit keeps only the most recent events.
func (s *SQLiteStorage) GetEvents(ctx context.Context, documentID string, limit int) ([]*types.ProcessingEvent, error) {
	args := []any{documentID}
	limitSQL := ""
	if limit > 0 {
		limitSQL = limitClause
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT id, document_id, stage, mention, action, project_id,
				confidence, reasoning, notes, raw, created_at
			FROM processing_events
			WHERE document_id = ?
			ORDER BY id DESC`+limitSQL+`
		) ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.ProcessingEvent
	for rows.Next() {
		var e types.ProcessingEvent
		var created string
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Stage, &e.Mention, &e.Action, &e.ProjectID,
			&e.Confidence, &e.Reasoning, &e.Notes, &e.Raw, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreatedAt = parseTime(created)
		events = append(events, &e)
	}
	return events, rows.Err()
}
