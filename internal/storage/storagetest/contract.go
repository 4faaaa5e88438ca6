// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

// Factory returns a fresh, empty store. The store is closed by the factory's
// own cleanup.
type Factory func(t *testing.T) storage.Storage

// Run runs the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"DuplicateCanonicalName", testDuplicateName},
		{"RollbackOnError", testRollback},
		{"AliasesAndNarrative", testAliasesAndNarrative},
		{"TagsUnion", testTagsUnion},
		{"LogEntries", testLogEntries},
		{"HasEvidence", testHasEvidence},
		{"ProjectNames", testProjectNames},
		{"Documents", testDocuments},
		{"Events", testEvents},
		{"SetCategory", testSetCategory},
		{"ConcurrentCreateSameName", testConcurrentCreate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func createProject(t *testing.T, s storage.Storage, p *types.Project) *types.Project {
	t.Helper()
	err := s.RunInTransaction(context.Background(), func(tx storage.Transaction) error {
		return tx.CreateProject(context.Background(), p)
	})
	if err != nil {
		t.Fatalf("CreateProject(%q) failed: %v", p.CanonicalName, err)
	}
	return p
}

func testCreateAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	p := createProject(t, s, &types.Project{
		CanonicalName: "  Project   Alpha ",
		Narrative:     "seed",
		Tags:          []string{"pipeline", "Pipeline", "offshore"},
	})
	if p.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}
	if p.CanonicalName != "Project Alpha" {
		t.Errorf("CanonicalName = %q, want normalized", p.CanonicalName)
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Narrative != "seed" {
		t.Errorf("Narrative = %q", got.Narrative)
	}
	if diff := cmp.Diff([]string{"pipeline", "offshore"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	byName, err := s.GetProjectByName(ctx, "project alpha")
	if err != nil {
		t.Fatalf("GetProjectByName: %v", err)
	}
	if byName.ID != p.ID {
		t.Errorf("GetProjectByName ID = %d, want %d", byName.ID, p.ID)
	}

	if _, err := s.GetProject(ctx, p.ID+100); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testDuplicateName(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	tests := []struct {
		existing, duplicate string
	}{
		{"Greenfield CCS Study", "greenfield ccs study"},
		{"Zürich Nord", "ZÜRICH NORD"},
		{"Ørsted Offshore", "ørsted  offshore"},
		{"Straße 7 Upgrade", "STRASSE 7 UPGRADE"},
	}
	for _, tt := range tests {
		p := createProject(t, s, &types.Project{CanonicalName: tt.existing})
		err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
			return tx.CreateProject(ctx, &types.Project{CanonicalName: tt.duplicate})
		})
		if !errors.Is(err, storage.ErrDuplicateName) {
			t.Errorf("CreateProject(%q) after %q: expected ErrDuplicateName, got %v", tt.duplicate, tt.existing, err)
		}
		got, err := s.GetProjectByName(ctx, tt.duplicate)
		if err != nil || got.ID != p.ID {
			t.Errorf("GetProjectByName(%q) = %v, %v; want project %d", tt.duplicate, got, err, p.ID)
		}
	}

	p := createProject(t, s, &types.Project{CanonicalName: "Kaybob South"})
	var added []bool
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, alias := range []string{"KAYBOB SOUTH", "Étang Sud", "ÉTANG SUD"} {
			ok, err := tx.AddAlias(ctx, p.ID, alias)
			if err != nil {
				return err
			}
			added = append(added, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AddAlias: %v", err)
	}
	if diff := cmp.Diff([]bool{false, true, false}, added); diff != "" {
		t.Errorf("aliases added mismatch (-want +got):\n%s", diff)
	}
	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if diff := cmp.Diff([]string{"Étang Sud"}, got.Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func testRollback(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		p := &types.Project{CanonicalName: "Doomed"}
		if err := tx.CreateProject(ctx, p); err != nil {
			return err
		}
		if err := tx.WriteLogEntry(ctx, &types.LogEntry{ProjectID: p.ID, DocumentID: "doc-1", Action: types.ActionCreate}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetProjectByName(ctx, "Doomed"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("project survived rollback: %v", err)
	}
	entries, err := s.GetDocumentLogEntries(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocumentLogEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("log entries survived rollback: %d", len(entries))
	}
}

func testAliasesAndNarrative(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	p := createProject(t, s, &types.Project{CanonicalName: "Project Alpha", Narrative: "one"})

	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		added, err := tx.AddAlias(ctx, p.ID, "Alpha Proj")
		if err != nil {
			return err
		}
		if !added {
			t.Error("expected first alias to be added")
		}
		if added, _ := tx.AddAlias(ctx, p.ID, "alpha proj"); added {
			t.Error("alias differing only in case must not be added")
		}
		if added, _ := tx.AddAlias(ctx, p.ID, "PROJECT ALPHA"); added {
			t.Error("canonical name must not become an alias")
		}
		return tx.AppendNarrative(ctx, p.ID, "\n\ntwo")
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if diff := cmp.Diff([]string{"Alpha Proj"}, got.Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
	if got.Narrative != "one\n\ntwo" {
		t.Errorf("Narrative = %q", got.Narrative)
	}
	if !got.UpdatedAt.After(p.CreatedAt) && !got.UpdatedAt.Equal(p.CreatedAt) {
		t.Errorf("UpdatedAt went backwards")
	}

	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AppendNarrative(ctx, 9999, "x")
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing project, got %v", err)
	}
}

func testTagsUnion(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	p := createProject(t, s, &types.Project{CanonicalName: "Tagged", Tags: []string{"a", "b"}})
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddTags(ctx, p.ID, []string{"B", "c", " ", "a", "d"})
	})
	if err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func testLogEntries(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	p := createProject(t, s, &types.Project{CanonicalName: "Logged"})
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.WriteLogEntry(ctx, &types.LogEntry{
			ProjectID: p.ID, DocumentID: "doc-a", Mention: "Logged", Location: "page 2",
			Action: types.ActionCreate, ConfirmedName: "Logged", PertinentText: "text",
			Tags: []string{"x", "X", "y"}, Model: "test/m", Confidence: 0.75, Reasoning: "new",
		}); err != nil {
			return err
		}
		return tx.WriteLogEntry(ctx, &types.LogEntry{
			DocumentID: "doc-a", Mention: "ACME Corp", Action: types.ActionReject, Model: "test/m",
			Reasoning: "client name",
		})
	})
	if err != nil {
		t.Fatalf("WriteLogEntry: %v", err)
	}

	entries, err := s.GetLogEntries(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetLogEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 project entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Location != "page 2" || e.Confidence != 0.75 || e.Action != types.ActionCreate || e.CreatedAt.IsZero() {
		t.Errorf("unexpected entry: %+v", e)
	}
	if diff := cmp.Diff([]string{"x", "y"}, e.Tags); diff != "" {
		t.Errorf("entry tags mismatch (-want +got):\n%s", diff)
	}

	docEntries, err := s.GetDocumentLogEntries(ctx, "doc-a")
	if err != nil {
		t.Fatalf("GetDocumentLogEntries: %v", err)
	}
	if len(docEntries) != 2 {
		t.Fatalf("expected 2 document entries, got %d", len(docEntries))
	}
	if docEntries[1].ProjectID != 0 || docEntries[1].Action != types.ActionReject {
		t.Errorf("unexpected reject entry: %+v", docEntries[1])
	}
}

func testHasEvidence(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	p := createProject(t, s, &types.Project{CanonicalName: "Evidence"})
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.WriteLogEntry(ctx, &types.LogEntry{ProjectID: p.ID, DocumentID: "doc-e", Action: types.ActionLink, PertinentText: "fact"})
	})
	if err != nil {
		t.Fatalf("WriteLogEntry: %v", err)
	}
	_ = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		cases := []struct {
			doc, text string
			want      bool
		}{
			{"doc-e", "fact", true},
			{"doc-e", "other", false},
			{"doc-f", "fact", false},
		}
		for _, c := range cases {
			got, err := tx.HasEvidence(ctx, p.ID, c.doc, c.text)
			if err != nil {
				t.Fatalf("HasEvidence: %v", err)
			}
			if got != c.want {
				t.Errorf("HasEvidence(%s, %s) = %v, want %v", c.doc, c.text, got, c.want)
			}
		}
		return nil
	})
}

func testProjectNames(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	p := createProject(t, s, &types.Project{CanonicalName: "Named", Narrative: "long text", Aliases: []string{"Nm"}})
	names, err := s.ProjectNames(ctx)
	if err != nil {
		t.Fatalf("ProjectNames: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected 1 project, got %d", len(names))
	}
	if names[0].ID != p.ID || names[0].Narrative != "" {
		t.Errorf("unexpected project: %+v", names[0])
	}
	if diff := cmp.Diff([]string{"Nm"}, names[0].Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func testDocuments(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	d := &types.Document{ID: "doc-1", Path: "/tmp/a.txt", Name: "a.txt", Type: "txt", Text: "hello"}
	if err := s.UpsertDocument(ctx, d); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if d.Status != types.DocPending || d.CreatedAt.IsZero() {
		t.Errorf("unexpected defaults: %+v", d)
	}
	if err := s.SetComprehensive(ctx, "doc-1", `{"financials":[]}`); err != nil {
		t.Fatalf("SetComprehensive: %v", err)
	}
	d.Text = "hello again"
	d.Status = types.DocProcessing
	if err := s.UpsertDocument(ctx, d); err != nil {
		t.Fatalf("UpsertDocument (update): %v", err)
	}
	if err := s.SetDocumentStatus(ctx, "doc-1", types.DocProcessed); err != nil {
		t.Fatalf("SetDocumentStatus: %v", err)
	}

	got, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Text != "hello again" || got.Status != types.DocProcessed || got.ProcessedAt == nil {
		t.Errorf("unexpected document: %+v", got)
	}
	if got.Comprehensive != `{"financials":[]}` {
		t.Errorf("comprehensive record lost on upsert: %q", got.Comprehensive)
	}

	if err := s.UpsertDocument(ctx, &types.Document{ID: "doc-2", Path: "/tmp/b.txt", Status: types.DocFailed}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	failed, err := s.ListDocuments(ctx, types.DocumentFilter{Status: types.DocFailed})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "doc-2" {
		t.Errorf("unexpected filtered documents: %+v", failed)
	}
	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetDocumentStatus(ctx, "missing", types.DocFailed); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testEvents(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for i := range 5 {
		if err := s.AddEvent(ctx, &types.ProcessingEvent{
			DocumentID: "doc-ev", Stage: types.StageAdjudication, Mention: fmt.Sprintf("m%d", i),
		}); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
	}
	_ = s.AddEvent(ctx, &types.ProcessingEvent{DocumentID: "other", Stage: types.StageScan})

	all, err := s.GetEvents(ctx, "doc-ev", 0)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(all) != 5 || all[0].Mention != "m0" {
		t.Fatalf("unexpected events: %d", len(all))
	}
	last, err := s.GetEvents(ctx, "doc-ev", 2)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(last) != 2 || last[0].Mention != "m3" || last[1].Mention != "m4" {
		t.Errorf("limit should keep the newest events in order, got %+v", last)
	}
}

func testSetCategory(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	a := createProject(t, s, &types.Project{CanonicalName: "Cat A"})
	createProject(t, s, &types.Project{CanonicalName: "Cat B"})
	if err := s.SetCategory(ctx, a.ID, "Energy", "Carbon Capture", "Feasibility Study"); err != nil {
		t.Fatalf("SetCategory: %v", err)
	}
	got, err := s.GetProject(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Category != "Energy" || got.SubCategory != "Carbon Capture" || got.Scope != "Feasibility Study" {
		t.Errorf("unexpected categorization: %+v", got)
	}
	missing, err := s.ListProjects(ctx, types.ProjectFilter{Uncategorized: true})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(missing) != 1 || missing[0].CanonicalName != "Cat B" {
		t.Errorf("unexpected uncategorized projects: %+v", missing)
	}
	if err := s.SetCategory(ctx, 4242, "x", "", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
				return tx.CreateProject(ctx, &types.Project{CanonicalName: "Race Project"})
			})
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, storage.ErrDuplicateName):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	all, err := s.ListProjects(ctx, types.ProjectFilter{})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 project, got %d", len(all))
	}
}
