package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateRegistrySchema creates the project registry tables. The canonical
// name is unique ignoring ASCII case; aliases are unique per project only.
func MigrateRegistrySchema(db *sql.Tx) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  canonical_name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		  narrative TEXT NOT NULL DEFAULT '',
		  created_at TEXT NOT NULL,
		  updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS project_aliases (
		  project_id INTEGER NOT NULL,
		  alias TEXT NOT NULL COLLATE NOCASE,
		  created_at TEXT NOT NULL,
		  PRIMARY KEY(project_id, alias),
		  FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create project_aliases table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS project_tags (
		  project_id INTEGER NOT NULL,
		  tag TEXT NOT NULL COLLATE NOCASE,
		  position INTEGER NOT NULL DEFAULT 0,
		  PRIMARY KEY(project_id, tag),
		  FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create project_tags table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to create projects index: %w", err)
	}
	return nil
}
