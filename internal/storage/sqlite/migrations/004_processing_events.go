package migrations

import (
	"database/sql"
	"fmt"
)

func MigrateProcessingEvents(db *sql.Tx) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS processing_events (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  document_id TEXT NOT NULL,
		  stage TEXT NOT NULL,
		  mention TEXT NOT NULL DEFAULT '',
		  action TEXT NOT NULL DEFAULT '',
		  project_id INTEGER NOT NULL DEFAULT 0,
		  confidence REAL NOT NULL DEFAULT 0,
		  reasoning TEXT NOT NULL DEFAULT '',
		  notes TEXT NOT NULL DEFAULT '',
		  raw TEXT NOT NULL DEFAULT '',
		  created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create processing_events table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_processing_events_document ON processing_events(document_id)`)
	if err != nil {
		return fmt.Errorf("failed to create processing_events index: %w", err)
	}
	return nil
}
