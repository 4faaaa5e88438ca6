package migrations

import (
	"database/sql"
	"fmt"
)

func MigrateDocumentsTable(db *sql.Tx) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
		  id TEXT PRIMARY KEY,
		  path TEXT NOT NULL,
		  name TEXT NOT NULL DEFAULT '',
		  type TEXT NOT NULL DEFAULT '',
		  content_hash TEXT NOT NULL DEFAULT '',
		  status TEXT NOT NULL DEFAULT 'pending',
		  text TEXT NOT NULL DEFAULT '',
		  comprehensive TEXT NOT NULL DEFAULT '',
		  processed_at TEXT,
		  created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`)
	if err != nil {
		return fmt.Errorf("failed to create documents index: %w", err)
	}
	return nil
}
