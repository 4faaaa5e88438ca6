package sqlite

import (
	"context"
	"testing"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

// testEnv provides a test environment with common setup and helpers.
// Use newTestEnv(t) to create a test environment with automatic cleanup.
type testEnv struct {
	t     *testing.T
	Store *SQLiteStorage
	Ctx   context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		t:     t,
		Store: newTestStore(t, ""),
		Ctx:   context.Background(),
	}
}

// CreateProject creates a project with the given canonical name.
func (e *testEnv) CreateProject(name string) *types.Project {
	e.t.Helper()
	p := &types.Project{CanonicalName: name}
	err := e.Store.RunInTransaction(e.Ctx, func(tx storage.Transaction) error {
		return tx.CreateProject(e.Ctx, p)
	})
	if err != nil {
		e.t.Fatalf("CreateProject(%q) failed: %v", name, err)
	}
	return p
}

// newTestStore opens a store in a temp dir unless dbPath is given.
// File-based databases are more reliable than in-memory for connection pool scenarios.
func newTestStore(t *testing.T, dbPath string) *SQLiteStorage {
	t.Helper()

	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	store, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})
	return store
}
