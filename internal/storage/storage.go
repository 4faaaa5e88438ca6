// Package storage defines the interface for project registry backends.
package storage

import (
	"context"
	"errors"

	"github.com/untoldecay/projectlog/internal/types"
)

var (
	// ErrNotFound is returned when a project or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned by CreateProject when another project
	// already holds the canonical name under types.NameKey.
	ErrDuplicateName = errors.New("canonical name already exists")

	// ErrUnavailable marks a registry read or write that failed for reasons
	// other than the data itself. It ends the current document.
	ErrUnavailable = errors.New("datastore unavailable")
)

// Transaction is the set of registry operations that run inside one
// atomic unit. The Aggregator applies a whole decision through it: every
// mutation and the log entry commit together or not at all.
//
// # SQLite Specifics
//
//   - Transactions start with BEGIN IMMEDIATE so the write lock is taken up front
//   - Concurrent writers queue on busy_timeout instead of failing with SQLITE_BUSY
type Transaction interface {
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	GetProjectByName(ctx context.Context, name string) (*types.Project, error)

	// CreateProject inserts p and fills in its ID and timestamps.
	CreateProject(ctx context.Context, p *types.Project) error
	AppendNarrative(ctx context.Context, projectID int64, text string) error
	// AddAlias reports whether the alias was new.
	AddAlias(ctx context.Context, projectID int64, alias string) (bool, error)
	AddTags(ctx context.Context, projectID int64, tags []string) error

	// HasEvidence reports whether a log entry for the project already
	// carries this pertinent text from this document.
	HasEvidence(ctx context.Context, projectID int64, documentID, pertinentText string) (bool, error)
	WriteLogEntry(ctx context.Context, e *types.LogEntry) error
}

// Storage is the persistent project registry.
type Storage interface {
	// Projects
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	GetProjectByName(ctx context.Context, name string) (*types.Project, error)
	ListProjects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error)
	// ProjectNames returns every project with names and timestamps only
	// (no narrative), for fuzzy matching.
	ProjectNames(ctx context.Context) ([]*types.Project, error)
	SetCategory(ctx context.Context, projectID int64, category, subCategory, scope string) error

	// Log entries
	GetLogEntries(ctx context.Context, projectID int64) ([]*types.LogEntry, error)
	GetDocumentLogEntries(ctx context.Context, documentID string) ([]*types.LogEntry, error)

	// Documents
	UpsertDocument(ctx context.Context, d *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error)
	SetDocumentStatus(ctx context.Context, id, status string) error
	SetComprehensive(ctx context.Context, id, data string) error

	// Processing events
	AddEvent(ctx context.Context, e *types.ProcessingEvent) error
	GetEvents(ctx context.Context, documentID string, limit int) ([]*types.ProcessingEvent, error)

	// RunInTransaction executes fn within a single transaction.
	//   - If fn returns nil, the transaction is committed
	//   - If fn returns an error, the transaction is rolled back
	//   - If fn panics, the transaction is rolled back and the panic is re-raised
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
	Path() string
}
