package migrations

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/untoldecay/projectlog/internal/types"
)

// MigrateNameKeys adds folded name keys to projects and aliases and makes
// them unique. NOCASE only folds ASCII, so "Zürich Nord" and "ZÜRICH NORD"
// would otherwise be two projects.
//
// Rows that already collide are kept: a duplicate project gets its id
// appended to the key, a duplicate alias row is dropped.
func MigrateNameKeys(db *sql.Tx) error {
	if err := addKeyColumn(db, "projects", "name_key"); err != nil {
		return err
	}
	if err := addKeyColumn(db, "project_aliases", "alias_key"); err != nil {
		return err
	}
	if err := backfillProjectKeys(db); err != nil {
		return err
	}
	if err := backfillAliasKeys(db); err != nil {
		return err
	}

	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_name_key ON projects(name_key)`); err != nil {
		return fmt.Errorf("failed to create name_key index: %w", err)
	}
	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_project_aliases_key ON project_aliases(project_id, alias_key)`); err != nil {
		return fmt.Errorf("failed to create alias_key index: %w", err)
	}
	return nil
}

func addKeyColumn(db *sql.Tx, table, column string) error {
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('`+table+`')
		WHERE name = ?
	`, column).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s.%s column: %w", table, column, err)
	}
	if exists {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add %s.%s column: %w", table, column, err)
	}
	return nil
}

type keyRow struct {
	id   int64
	name string
	key  string
}

func backfillProjectKeys(db *sql.Tx) error {
	rows, err := db.Query(`SELECT id, canonical_name, name_key FROM projects ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to read project names: %w", err)
	}
	var all []keyRow
	for rows.Next() {
		var r keyRow
		if err := rows.Scan(&r.id, &r.name, &r.key); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan project name: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(all))
	for _, r := range all {
		if r.key != "" {
			seen[r.key] = true
		}
	}
	for _, r := range all {
		if r.key != "" {
			continue
		}
		key := types.NameKey(r.name)
		if seen[key] {
			key += "#" + strconv.FormatInt(r.id, 10)
		}
		seen[key] = true
		if _, err := db.Exec(`UPDATE projects SET name_key = ? WHERE id = ?`, key, r.id); err != nil {
			return fmt.Errorf("failed to set name_key for project %d: %w", r.id, err)
		}
	}
	return nil
}

func backfillAliasKeys(db *sql.Tx) error {
	rows, err := db.Query(`SELECT rowid, project_id, alias, alias_key FROM project_aliases ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to read aliases: %w", err)
	}
	type aliasRow struct {
		keyRow
		project int64
	}
	var all []aliasRow
	for rows.Next() {
		var r aliasRow
		if err := rows.Scan(&r.id, &r.project, &r.name, &r.key); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan alias: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	type projectKey struct {
		project int64
		key     string
	}
	seen := make(map[projectKey]bool, len(all))
	for _, r := range all {
		if r.key != "" {
			seen[projectKey{r.project, r.key}] = true
		}
	}
	for _, r := range all {
		if r.key != "" {
			continue
		}
		k := projectKey{r.project, types.NameKey(r.name)}
		if seen[k] {
			if _, err := db.Exec(`DELETE FROM project_aliases WHERE rowid = ?`, r.id); err != nil {
				return fmt.Errorf("failed to drop duplicate alias %q: %w", r.name, err)
			}
			continue
		}
		seen[k] = true
		if _, err := db.Exec(`UPDATE project_aliases SET alias_key = ? WHERE rowid = ?`, k.key, r.id); err != nil {
			return fmt.Errorf("failed to set alias_key for %q: %w", r.name, err)
		}
	}
	return nil
}
