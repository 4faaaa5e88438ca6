// Package sqlite - database migrations
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/projectlog/internal/storage/sqlite/migrations"
)

// Migration represents a single database migration
type Migration struct {
	Name string
	Func func(*sql.Tx) error
}

// migrationsList is the ordered list of all migrations. Every migration is
// idempotent and runs on each open.
var migrationsList = []Migration{
	{"registry_schema", migrations.MigrateRegistrySchema},
	{"log_entries", migrations.MigrateLogEntries},
	{"documents_table", migrations.MigrateDocumentsTable},
	{"processing_events", migrations.MigrateProcessingEvents},
	{"project_category_columns", migrations.MigrateProjectCategoryColumns},
	{"name_keys", migrations.MigrateNameKeys},
}

// MigrationInfo contains metadata about a migration for inspection
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns all registered migrations with descriptions.
func ListMigrations() []MigrationInfo {
	result := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		result[i] = MigrationInfo{
			Name:        m.Name,
			Description: getMigrationDescription(m.Name),
		}
	}
	return result
}

func getMigrationDescription(name string) string {
	descriptions := map[string]string{
		"registry_schema":          "Adds projects, project_aliases and project_tags tables",
		"log_entries":              "Adds append-only log_entries and log_entry_tags tables",
		"documents_table":          "Adds documents table with status and comprehensive side-record",
		"processing_events":        "Adds processing_events audit trail table",
		"project_category_columns": "Adds category, sub_category and scope columns to projects",
		"name_keys":                "Adds unique case-folded name_key and alias_key columns",
	}

	if desc, ok := descriptions[name]; ok {
		return desc
	}
	return "Unknown migration"
}

// RunMigrations executes all registered migrations in order inside one
// write transaction, so parallel processes opening the same file cannot
// race on check-then-modify steps.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to acquire write lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(tx); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}
