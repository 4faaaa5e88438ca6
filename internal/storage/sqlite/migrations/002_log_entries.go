package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateLogEntries creates the append-only extraction log. project_id is
// NULL for rejected mentions.
func MigrateLogEntries(db *sql.Tx) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS log_entries (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  project_id INTEGER,
		  document_id TEXT NOT NULL,
		  mention TEXT NOT NULL DEFAULT '',
		  location TEXT NOT NULL DEFAULT '',
		  action TEXT NOT NULL,
		  confirmed_name TEXT NOT NULL DEFAULT '',
		  pertinent_text TEXT NOT NULL DEFAULT '',
		  model TEXT NOT NULL DEFAULT '',
		  confidence REAL NOT NULL DEFAULT 0,
		  reasoning TEXT NOT NULL DEFAULT '',
		  created_at TEXT NOT NULL,
		  FOREIGN KEY(project_id) REFERENCES projects(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create log_entries table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS log_entry_tags (
		  entry_id INTEGER NOT NULL,
		  tag TEXT NOT NULL COLLATE NOCASE,
		  position INTEGER NOT NULL DEFAULT 0,
		  PRIMARY KEY(entry_id, tag),
		  FOREIGN KEY(entry_id) REFERENCES log_entries(id) ON DELETE CASCADE
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create log_entry_tags table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_log_entries_project ON log_entries(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_document ON log_entries(document_id)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create log_entries index: %w", err)
		}
	}
	return nil
}
