package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/storage/storagetest"
	"github.com/untoldecay/projectlog/internal/types"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return newTestStore(t, "")
	})
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "registry.db")
	store := newTestStore(t, path)
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := New(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	env := &testEnv{t: t, Store: first, Ctx: ctx}
	p := env.CreateProject("Survivor")
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := newTestStore(t, path)
	got, err := second.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject after reopen: %v", err)
	}
	if got.CanonicalName != "Survivor" {
		t.Errorf("CanonicalName = %q", got.CanonicalName)
	}
}

func TestMigrateNameKeys_BackfillsLegacyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	ctx := context.Background()

	// Build a database as it was before name keys, holding names that only
	// differ in non-ASCII case.
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, m := range migrationsList {
		if m.Name == "name_keys" {
			continue
		}
		if err := m.Func(tx); err != nil {
			t.Fatalf("migration %s: %v", m.Name, err)
		}
	}
	ts := now()
	for _, stmt := range []string{
		`INSERT INTO projects (id, canonical_name, created_at, updated_at) VALUES (1, 'Zürich Nord', '` + ts + `', '` + ts + `')`,
		`INSERT INTO projects (id, canonical_name, created_at, updated_at) VALUES (2, 'ZÜRICH NORD', '` + ts + `', '` + ts + `')`,
		`INSERT INTO project_aliases (project_id, alias, created_at) VALUES (1, 'Étang Sud', '` + ts + `')`,
		`INSERT INTO project_aliases (project_id, alias, created_at) VALUES (1, 'ÉTANG SUD', '` + ts + `')`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store := newTestStore(t, path)
	got, err := store.GetProjectByName(ctx, "zürich nord")
	if err != nil {
		t.Fatalf("GetProjectByName: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("lookup found project %d, want the older project 1", got.ID)
	}
	if diff := cmp.Diff([]string{"Étang Sud"}, got.Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
	if _, err := store.GetProject(ctx, 2); err != nil {
		t.Errorf("colliding project should be kept: %v", err)
	}

	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateProject(ctx, &types.Project{CanonicalName: "ZÜRICH nord"})
	})
	if !errors.Is(err, storage.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName after backfill, got %v", err)
	}
}

func TestListMigrations(t *testing.T) {
	infos := ListMigrations()
	if len(infos) != len(migrationsList) {
		t.Fatalf("got %d migrations, want %d", len(infos), len(migrationsList))
	}
	for _, info := range infos {
		if info.Description == "Unknown migration" {
			t.Errorf("migration %s has no description", info.Name)
		}
	}
}

func TestRunInTransaction_PanicRollsBack(t *testing.T) {
	env := newTestEnv(t)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
			p := &types.Project{CanonicalName: "Panicky"}
			if err := tx.CreateProject(env.Ctx, p); err != nil {
				return err
			}
			panic("boom")
		})
	}()
	if _, err := env.Store.GetProjectByName(env.Ctx, "Panicky"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("project survived panic: %v", err)
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("UNIQUE constraint failed: projects.canonical_name"), true},
		{errors.New("sqlite3: constraint failed: UNIQUE constraint failed"), true},
		{errors.New("disk I/O error"), false},
	}
	for _, tt := range tests {
		if got := isUniqueConstraintError(tt.err); got != tt.want {
			t.Errorf("isUniqueConstraintError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
