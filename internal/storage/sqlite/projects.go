package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

const projectColumns = `id, canonical_name, narrative, category, sub_category, scope, created_at, updated_at`

// GetProject returns a project with its aliases and tags.
func (s *SQLiteStorage) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	return getProject(ctx, s.db, `WHERE id = ?`, id)
}

// GetProjectByName looks a project up by canonical name under types.NameKey.
func (s *SQLiteStorage) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	return getProject(ctx, s.db, `WHERE name_key = ?`, types.NameKey(name))
}

// ListProjects returns projects, most recently updated first.
func (s *SQLiteStorage) ListProjects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error) {
	var where []string
	var args []any
	if filter.Category != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, filter.Category)
	}
	if filter.Uncategorized {
		where = append(where, "category = ''")
	}
	q := `SELECT ` + projectColumns + ` FROM projects`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY updated_at DESC, id ASC`
	if filter.Limit > 0 {
		q += limitClause
		args = append(args, filter.Limit)
	}

	projects, err := scanProjects(ctx, s.db, q, args...)
	if err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.db, projects, true); err != nil {
		return nil, err
	}
	return projects, nil
}

// ProjectNames returns every project without its narrative, aliases
// included, for the matcher.
func (s *SQLiteStorage) ProjectNames(ctx context.Context) ([]*types.Project, error) {
	projects, err := scanProjects(ctx, s.db, `
		SELECT id, canonical_name, '', category, sub_category, scope, created_at, updated_at
		FROM projects ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.db, projects, false); err != nil {
		return nil, err
	}
	return projects, nil
}

// SetCategory stores the categorization of a project.
func (s *SQLiteStorage) SetCategory(ctx context.Context, projectID int64, category, subCategory, scope string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET category = ?, sub_category = ?, scope = ?, updated_at = ?
		WHERE id = ?
	`, category, subCategory, scope, now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	return requireRow(res, fmt.Sprintf("project %d", projectID))
}

func (t *sqliteTx) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	return getProject(ctx, t.tx, `WHERE id = ?`, id)
}

func (t *sqliteTx) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	return getProject(ctx, t.tx, `WHERE name_key = ?`, types.NameKey(name))
}

// CreateProject inserts p with its initial tags. A name collision returns
// storage.ErrDuplicateName.
func (t *sqliteTx) CreateProject(ctx context.Context, p *types.Project) error {
	name := types.NormalizeName(p.CanonicalName)
	if name == "" {
		return fmt.Errorf("canonical name is required")
	}
	ts := now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO projects (canonical_name, name_key, narrative, category, sub_category, scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, name, types.NameKey(name), p.Narrative, p.Category, p.SubCategory, p.Scope, ts, ts)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("project %q: %w", name, storage.ErrDuplicateName)
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get project id: %w", err)
	}

	p.ID = id
	p.CanonicalName = name
	p.CreatedAt = parseTime(ts)
	p.UpdatedAt = p.CreatedAt
	for _, alias := range p.Aliases {
		if _, err := t.AddAlias(ctx, id, alias); err != nil {
			return err
		}
	}
	return t.AddTags(ctx, id, p.Tags)
}

func (t *sqliteTx) AppendNarrative(ctx context.Context, projectID int64, text string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE projects SET narrative = narrative || ?, updated_at = ? WHERE id = ?
	`, text, now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to append narrative: %w", err)
	}
	return requireRow(res, fmt.Sprintf("project %d", projectID))
}

func (t *sqliteTx) AddAlias(ctx context.Context, projectID int64, alias string) (bool, error) {
	alias = types.NormalizeName(alias)
	if alias == "" {
		return false, nil
	}
	var canonical string
	err := t.tx.QueryRowContext(ctx, `SELECT canonical_name FROM projects WHERE id = ?`, projectID).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to load project: %w", err)
	}
	key := types.NameKey(alias)
	if types.NameKey(canonical) == key {
		return false, nil
	}

	ts := now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO project_aliases (project_id, alias, alias_key, created_at) VALUES (?, ?, ?, ?)
	`, projectID, alias, key, ts)
	if err != nil {
		return false, fmt.Errorf("failed to add alias: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, ts, projectID); err != nil {
		return false, fmt.Errorf("failed to touch project: %w", err)
	}
	return true, nil
}

// AddTags unions tags into the project's tag set, keeping first-seen order.
func (t *sqliteTx) AddTags(ctx context.Context, projectID int64, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	var next int
	if err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM project_tags WHERE project_id = ?`, projectID).Scan(&next); err != nil {
		return fmt.Errorf("failed to read tag position: %w", err)
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		res, err := t.tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO project_tags (project_id, tag, position) VALUES (?, ?, ?)
		`, projectID, tag, next)
		if err != nil {
			return fmt.Errorf("failed to add tag: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			next++
		}
	}
	return nil
}

func getProject(ctx context.Context, q queryer, where string, args ...any) (*types.Project, error) {
	projects, err := scanProjects(ctx, q, `SELECT `+projectColumns+` FROM projects `+where, args...)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("project %v: %w", args[0], storage.ErrNotFound)
	}
	if err := hydrate(ctx, q, projects, true); err != nil {
		return nil, err
	}
	return projects[0], nil
}

func scanProjects(ctx context.Context, q queryer, query string, args ...any) ([]*types.Project, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Project
	for rows.Next() {
		var p types.Project
		var created, updated string
		if err := rows.Scan(&p.ID, &p.CanonicalName, &p.Narrative, &p.Category, &p.SubCategory, &p.Scope, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// hydrate loads aliases (and tags when withTags is set) for projects.
func hydrate(ctx context.Context, q queryer, projects []*types.Project, withTags bool) error {
	if len(projects) == 0 {
		return nil
	}
	byID := make(map[int64]*types.Project, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}

	filter, fargs := "", []any(nil)
	if len(projects) == 1 {
		filter, fargs = ` WHERE project_id = ?`, []any{projects[0].ID}
	}

	load := func(query string, add func(p *types.Project, v string)) error {
		rows, err := q.QueryContext(ctx, query, fargs...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id int64
			var v string
			if err := rows.Scan(&id, &v); err != nil {
				return err
			}
			if p, ok := byID[id]; ok {
				add(p, v)
			}
		}
		return rows.Err()
	}

	if err := load(`SELECT project_id, alias FROM project_aliases`+filter+` ORDER BY created_at, rowid`,
		func(p *types.Project, v string) { p.Aliases = append(p.Aliases, v) }); err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}
	if !withTags {
		return nil
	}
	if err := load(`SELECT project_id, tag FROM project_tags`+filter+` ORDER BY position`,
		func(p *types.Project, v string) { p.Tags = append(p.Tags, v) }); err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}
