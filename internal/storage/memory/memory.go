// Package memory implements an in-memory storage.Storage. Transactions
// operate on a copy of the state that replaces the live state only on
// commit, so a failed or panicking transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

type state struct {
	projects  map[int64]*types.Project
	logs      []*types.LogEntry
	nextProj  int64
	nextLog   int64
	documents map[string]*types.Document
}

func (s *state) clone() *state {
	c := &state{
		projects:  make(map[int64]*types.Project, len(s.projects)),
		logs:      slices.Clone(s.logs),
		nextProj:  s.nextProj,
		nextLog:   s.nextLog,
		documents: s.documents,
	}
	for id, p := range s.projects {
		c.projects[id] = copyProject(p)
	}
	return c
}

// MemoryStorage keeps the registry in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	st     *state
	events []*types.ProcessingEvent
	nextEv int64
	closed bool

	// Fault, when set, is called before every transactional write with the
	// operation name; a non-nil result aborts that write. Tests use it to
	// simulate a crash partway through applying a decision.
	Fault func(op string) error
}

var _ storage.Storage = (*MemoryStorage)(nil)

// New returns an empty store.
func New() *MemoryStorage {
	return &MemoryStorage{st: &state{
		projects:  make(map[int64]*types.Project),
		documents: make(map[string]*types.Document),
		nextProj:  1,
		nextLog:   1,
	}}
}

func (m *MemoryStorage) Path() string { return ":memory:" }

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// RunInTransaction serializes transactions and commits by swapping state.
// A panic in fn propagates and the working copy is discarded.
func (m *MemoryStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store closed")
	}
	work := m.st.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{st: work, fault: m.Fault}); err != nil {
		return err
	}

	m.mu.Lock()
	m.st = work
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memTx{st: m.st}).GetProject(ctx, id)
}

func (m *MemoryStorage) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memTx{st: m.st}).GetProjectByName(ctx, name)
}

func (m *MemoryStorage) ListProjects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Project
	for _, p := range m.st.projects {
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		if filter.Uncategorized && p.Category != "" {
			continue
		}
		out = append(out, copyProject(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStorage) ProjectNames(ctx context.Context) ([]*types.Project, error) {
	projects, err := m.ListProjects(ctx, types.ProjectFilter{})
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		p.Narrative = ""
	}
	return projects, nil
}

func (m *MemoryStorage) SetCategory(ctx context.Context, projectID int64, category, subCategory, scope string) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.projects[projectID]
	if !ok {
		return fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	p.Category, p.SubCategory, p.Scope = category, subCategory, scope
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStorage) GetLogEntries(ctx context.Context, projectID int64) ([]*types.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.LogEntry
	for _, e := range m.st.logs {
		if e.ProjectID == projectID {
			out = append(out, copyLog(e))
		}
	}
	return out, nil
}

func (m *MemoryStorage) GetDocumentLogEntries(ctx context.Context, documentID string) ([]*types.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.LogEntry
	for _, e := range m.st.logs {
		if e.DocumentID == documentID {
			out = append(out, copyLog(e))
		}
	}
	return out, nil
}

func (m *MemoryStorage) UpsertDocument(ctx context.Context, d *types.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	if existing, ok := m.st.documents[d.ID]; ok {
		c.CreatedAt = existing.CreatedAt
		if c.Comprehensive == "" {
			c.Comprehensive = existing.Comprehensive
		}
		if c.ProcessedAt == nil {
			c.ProcessedAt = existing.ProcessedAt
		}
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = types.DocPending
	}
	m.st.documents[d.ID] = &c
	d.CreatedAt = c.CreatedAt
	d.Status = c.Status
	return nil
}

func (m *MemoryStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.st.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (m *MemoryStorage) ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Document
	for _, d := range m.st.documents {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStorage) SetDocumentStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	d.Status = status
	if status == types.DocProcessed || status == types.DocNoMentions {
		now := time.Now().UTC()
		d.ProcessedAt = &now
	}
	return nil
}

func (m *MemoryStorage) SetComprehensive(ctx context.Context, id, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	d.Comprehensive = data
	return nil
}

func (m *MemoryStorage) AddEvent(ctx context.Context, e *types.ProcessingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEv++
	c := *e
	c.ID = m.nextEv
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, &c)
	e.ID = c.ID
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, documentID string, limit int) ([]*types.ProcessingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.ProcessingEvent
	for _, e := range m.events {
		if e.DocumentID == documentID {
			c := *e
			out = append(out, &c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memTx struct {
	st    *state
	fault func(string) error
}

func (t *memTx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	return t.fault(op)
}

func (t *memTx) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	p, ok := t.st.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", id, storage.ErrNotFound)
	}
	return copyProject(p), nil
}

func (t *memTx) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	name = types.NormalizeName(name)
	key := types.NameKey(name)
	for _, p := range t.st.projects {
		if types.NameKey(p.CanonicalName) == key {
			return copyProject(p), nil
		}
	}
	return nil, fmt.Errorf("project %q: %w", name, storage.ErrNotFound)
}

func (t *memTx) CreateProject(ctx context.Context, p *types.Project) error {
	if err := t.check("create_project"); err != nil {
		return err
	}
	name := types.NormalizeName(p.CanonicalName)
	if name == "" {
		return fmt.Errorf("canonical name is required")
	}
	if _, err := t.GetProjectByName(ctx, name); err == nil {
		return fmt.Errorf("project %q: %w", name, storage.ErrDuplicateName)
	}
	now := time.Now().UTC()
	c := copyProject(p)
	c.ID = t.st.nextProj
	c.CanonicalName = name
	c.Tags = mergeTags(nil, c.Tags)
	c.CreatedAt, c.UpdatedAt = now, now
	t.st.nextProj++
	t.st.projects[c.ID] = c

	p.ID, p.CanonicalName, p.CreatedAt, p.UpdatedAt = c.ID, c.CanonicalName, now, now
	return nil
}

func (t *memTx) AppendNarrative(ctx context.Context, projectID int64, text string) error {
	if err := t.check("append_narrative"); err != nil {
		return err
	}
	p, ok := t.st.projects[projectID]
	if !ok {
		return fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	p.Narrative += text
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) AddAlias(ctx context.Context, projectID int64, alias string) (bool, error) {
	if err := t.check("add_alias"); err != nil {
		return false, err
	}
	p, ok := t.st.projects[projectID]
	if !ok {
		return false, fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	alias = types.NormalizeName(alias)
	if alias == "" || p.HasName(alias) {
		return false, nil
	}
	p.Aliases = append(p.Aliases, alias)
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (t *memTx) AddTags(ctx context.Context, projectID int64, tags []string) error {
	if err := t.check("add_tags"); err != nil {
		return err
	}
	p, ok := t.st.projects[projectID]
	if !ok {
		return fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	p.Tags = mergeTags(p.Tags, tags)
	return nil
}

func (t *memTx) HasEvidence(ctx context.Context, projectID int64, documentID, pertinentText string) (bool, error) {
	for _, e := range t.st.logs {
		if e.ProjectID == projectID && e.DocumentID == documentID && e.PertinentText == pertinentText {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) WriteLogEntry(ctx context.Context, e *types.LogEntry) error {
	if err := t.check("write_log_entry"); err != nil {
		return err
	}
	c := copyLog(e)
	c.ID = t.st.nextLog
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.st.nextLog++
	t.st.logs = append(t.st.logs, c)
	e.ID, e.CreatedAt = c.ID, c.CreatedAt
	return nil
}

func mergeTags(existing, add []string) []string {
	out := slices.Clone(existing)
	for _, tag := range add {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !slices.ContainsFunc(out, func(s string) bool { return strings.EqualFold(s, tag) }) {
			out = append(out, tag)
		}
	}
	return out
}

func copyProject(p *types.Project) *types.Project {
	c := *p
	c.Aliases = slices.Clone(p.Aliases)
	c.Tags = slices.Clone(p.Tags)
	return &c
}

func copyLog(e *types.LogEntry) *types.LogEntry {
	c := *e
	c.Tags = slices.Clone(e.Tags)
	return &c
}
