package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateProjectCategoryColumns adds the categorization columns to projects.
func MigrateProjectCategoryColumns(db *sql.Tx) error {
	for _, col := range []string{"category", "sub_category", "scope"} {
		var exists bool
		err := db.QueryRow(`
			SELECT COUNT(*) > 0
			FROM pragma_table_info('projects')
			WHERE name = ?
		`, col).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check %s column: %w", col, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(`ALTER TABLE projects ADD COLUMN ` + col + ` TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add %s column: %w", col, err)
		}
	}
	return nil
}
