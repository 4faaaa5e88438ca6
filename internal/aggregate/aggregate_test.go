package aggregate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/storage/memory"
	"github.com/untoldecay/projectlog/internal/storage/sqlite"
	"github.com/untoldecay/projectlog/internal/types"
)

const testModel = "llmtest/scripted"

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator(store storage.Storage) *Aggregator {
	a := New(store, nil)
	a.now = func() time.Time { return fixedNow }
	return a
}

func seedProject(t *testing.T, store storage.Storage, name, narrative string) *types.Project {
	t.Helper()
	p := &types.Project{CanonicalName: name}
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateProject(ctx, p); err != nil {
			return err
		}
		if narrative != "" {
			return tx.AppendNarrative(ctx, p.ID, narrative)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed %q: %v", name, err)
	}
	return p
}

func mustProject(t *testing.T, store storage.Storage, id int64) *types.Project {
	t.Helper()
	p, err := store.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProject(%d): %v", id, err)
	}
	return p
}

func logCount(t *testing.T, store storage.Storage, documentID string) int {
	t.Helper()
	entries, err := store.GetDocumentLogEntries(context.Background(), documentID)
	if err != nil {
		t.Fatalf("GetDocumentLogEntries: %v", err)
	}
	return len(entries)
}

func TestApply_LinkAppendsNarrativeAndAlias(t *testing.T) {
	store := memory.New()
	alpha := seedProject(t, store, "Project Alpha", "---\nTimestamp: earlier\nSource Document: doc-0\n---\nKick-off.")
	agg := newTestAggregator(store)

	d := types.Link{ProjectID: alpha.ID, Evidence: types.Evidence{
		ConfirmedName: "Alpha Proj",
		PertinentText: "finished the seismic survey",
		Tags:          []string{"Seismic"},
		Confidence:    0.8,
	}}
	m := types.Mention{Raw: "Alpha Proj", DocumentID: "doc-1", Location: "page 2"}

	res, err := agg.Apply(context.Background(), d, m, testModel)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Outcome != types.OutcomeLinked || res.ProjectID != alpha.ID || !res.Appended {
		t.Errorf("result = %+v", res)
	}

	got := mustProject(t, store, alpha.ID)
	wantNarrative := "---\nTimestamp: earlier\nSource Document: doc-0\n---\nKick-off." +
		"\n\n---\nTimestamp: 2024-03-01T12:00:00Z\nSource Document: doc-1\n---\nfinished the seismic survey"
	if got.Narrative != wantNarrative {
		t.Errorf("narrative mismatch (-want +got):\n%s", cmp.Diff(wantNarrative, got.Narrative))
	}
	if diff := cmp.Diff([]string{"Alpha Proj"}, got.Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Seismic"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	entries, _ := store.GetLogEntries(context.Background(), alpha.ID)
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != types.ActionLink || e.Model != testModel || e.Confidence != 0.8 || e.Location != "page 2" {
		t.Errorf("log entry = %+v", e)
	}
}

func TestApply_LinkAddsMentionAndConfirmedName(t *testing.T) {
	store := memory.New()
	alpha := seedProject(t, store, "Project Alpha", "")
	agg := newTestAggregator(store)

	d := types.Link{ProjectID: alpha.ID, Evidence: types.Evidence{ConfirmedName: "Alpha"}}
	res, err := agg.Apply(context.Background(), d, types.Mention{Raw: "Alpha Proj", DocumentID: "doc-1"}, testModel)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if diff := cmp.Diff([]string{"Alpha", "Alpha Proj"}, res.AliasesAdded); diff != "" {
		t.Errorf("aliases added mismatch (-want +got):\n%s", diff)
	}

	// Names already known are not added again.
	d.ConfirmedName = "project alpha"
	res, err = agg.Apply(context.Background(), d, types.Mention{Raw: "ALPHA PROJ", DocumentID: "doc-2"}, testModel)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.AliasesAdded) != 0 {
		t.Errorf("no new aliases expected, got %v", res.AliasesAdded)
	}
	if res.Appended {
		t.Error("empty pertinent text should not touch the narrative")
	}
}

func TestApply_CreateProject(t *testing.T) {
	store := memory.New()
	agg := newTestAggregator(store)

	d := types.Create{Evidence: types.Evidence{
		ConfirmedName: "Greenfield CCS Study",
		PertinentText: "A study of carbon storage.",
		Tags:          []string{"ccs"},
	}}
	res, err := agg.Apply(context.Background(), d, types.Mention{Raw: "Greenfield CCS Study", DocumentID: "doc-9"}, testModel)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Outcome != types.OutcomeCreated || res.ProjectName != "Greenfield CCS Study" {
		t.Errorf("result = %+v", res)
	}

	p := mustProject(t, store, res.ProjectID)
	want := "---\nTimestamp: 2024-03-01T12:00:00Z\nSource Document: doc-9\n---\nA study of carbon storage."
	if p.Narrative != want {
		t.Errorf("narrative = %q", p.Narrative)
	}
	if len(p.Aliases) != 0 {
		t.Errorf("mention equal to the canonical name should not become an alias: %v", p.Aliases)
	}
	if n := logCount(t, store, "doc-9"); n != 1 {
		t.Errorf("log entries = %d, want exactly 1", n)
	}
}

func TestApply_CreateKeepsMentionAsAlias(t *testing.T) {
	store := memory.New()
	agg := newTestAggregator(store)
	d := types.Create{Evidence: types.Evidence{ConfirmedName: "West Doe Battery Storage"}}

	res, err := agg.Apply(context.Background(), d, types.Mention{Raw: "WD battery", DocumentID: "doc-1"}, testModel)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if diff := cmp.Diff([]string{"WD battery"}, mustProject(t, store, res.ProjectID).Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_RejectWritesOnlyLogEntry(t *testing.T) {
	store := memory.New()
	agg := newTestAggregator(store)
	d := types.Reject{Evidence: types.Evidence{Reasoning: "invalid_model_output"}}

	res, err := agg.Apply(context.Background(), d, types.Mention{Raw: "Acme Corp", DocumentID: "doc-1"}, testModel)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Outcome != types.OutcomeRejected || res.ProjectID != 0 {
		t.Errorf("result = %+v", res)
	}
	projects, _ := store.ListProjects(context.Background(), types.ProjectFilter{})
	if len(projects) != 0 {
		t.Errorf("reject must not mutate the registry, got %d projects", len(projects))
	}
	entries, _ := store.GetDocumentLogEntries(context.Background(), "doc-1")
	if len(entries) != 1 || entries[0].Reasoning != "invalid_model_output" || entries[0].ProjectID != 0 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestApply_DuplicateCreateBecomesLink(t *testing.T) {
	store := memory.New()
	winner := seedProject(t, store, "Greenfield CCS Study", "")
	agg := newTestAggregator(store)

	d := types.Create{Evidence: types.Evidence{ConfirmedName: "greenfield ccs study", PertinentText: "Second source."}}
	res, err := agg.Apply(context.Background(), d, types.Mention{Raw: "Greenfield CCS", DocumentID: "doc-2"}, testModel)
	if err != nil {
		t.Fatalf("duplicate create should not surface an error: %v", err)
	}
	if !res.DuplicateRace || res.Outcome != types.OutcomeLinked || res.ProjectID != winner.ID {
		t.Errorf("result = %+v", res)
	}
	entries, _ := store.GetLogEntries(context.Background(), winner.ID)
	if len(entries) != 1 || entries[0].Action != types.ActionLink {
		t.Errorf("entries = %+v", entries)
	}
}

func TestApply_CreateFoldsNonASCIICase(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Storage{
		"memory": func(t *testing.T) storage.Storage { return memory.New() },
		"sqlite": func(t *testing.T) storage.Storage {
			s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "plog.db"))
			if err != nil {
				t.Fatalf("sqlite.New: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			agg := newTestAggregator(store)
			ctx := context.Background()

			first, err := agg.Apply(ctx, types.Create{Evidence: types.Evidence{ConfirmedName: "Zürich Nord"}},
				types.Mention{Raw: "Zürich Nord", DocumentID: "doc-1"}, testModel)
			if err != nil {
				t.Fatalf("first create: %v", err)
			}
			second, err := agg.Apply(ctx, types.Create{Evidence: types.Evidence{ConfirmedName: "ZÜRICH NORD"}},
				types.Mention{Raw: "ZÜRICH NORD", DocumentID: "doc-2"}, testModel)
			if err != nil {
				t.Fatalf("second create: %v", err)
			}
			if second.Outcome != types.OutcomeLinked || !second.DuplicateRace || second.ProjectID != first.ProjectID {
				t.Errorf("second = %+v, want link to project %d", second, first.ProjectID)
			}
			projects, err := store.ListProjects(ctx, types.ProjectFilter{})
			if err != nil {
				t.Fatalf("ListProjects: %v", err)
			}
			if len(projects) != 1 {
				t.Errorf("projects = %d, want 1", len(projects))
			}
			if got := mustProject(t, store, first.ProjectID); len(got.Aliases) != 0 {
				t.Errorf("case variant stored as alias: %v", got.Aliases)
			}
		})
	}
}

func TestApply_SameEvidenceAppendedOnce(t *testing.T) {
	store := memory.New()
	alpha := seedProject(t, store, "Project Alpha", "")
	agg := newTestAggregator(store)
	d := types.Link{ProjectID: alpha.ID, Evidence: types.Evidence{PertinentText: "Phase 2 approved."}}
	m := types.Mention{Raw: "Project Alpha", DocumentID: "doc-1"}

	for i := range 2 {
		res, err := agg.Apply(context.Background(), d, m, testModel)
		if err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
		if res.Appended != (i == 0) {
			t.Errorf("Apply #%d: appended = %v", i, res.Appended)
		}
	}
	if got := strings.Count(mustProject(t, store, alpha.ID).Narrative, "Phase 2 approved."); got != 1 {
		t.Errorf("evidence appears %d times, want 1", got)
	}
	if n := logCount(t, store, "doc-1"); n != 2 {
		t.Errorf("every application is logged, got %d entries", n)
	}
}

func TestApply_LinkToMissingProject(t *testing.T) {
	store := memory.New()
	agg := newTestAggregator(store)
	_, err := agg.Apply(context.Background(), types.Link{ProjectID: 42}, types.Mention{Raw: "x", DocumentID: "doc-1"}, testModel)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := logCount(t, store, "doc-1"); n != 0 {
		t.Errorf("failed apply left %d log entries", n)
	}
}

func TestApply_CancelledBeforeStart(t *testing.T) {
	store := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAggregator(store).Apply(ctx, types.Reject{}, types.Mention{Raw: "x", DocumentID: "doc-1"}, testModel)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

// A failure at any write inside the transaction must leave neither the
// registry mutation nor the log entry behind.
func TestApply_Atomicity(t *testing.T) {
	ops := []string{"append_narrative", "add_alias", "add_tags", "write_log_entry"}
	for _, op := range ops {
		t.Run(op, func(t *testing.T) {
			store := memory.New()
			alpha := seedProject(t, store, "Project Alpha", "")
			store.Fault = func(o string) error {
				if o == op {
					return fmt.Errorf("injected crash at %s", o)
				}
				return nil
			}

			d := types.Link{ProjectID: alpha.ID, Evidence: types.Evidence{
				ConfirmedName: "Alpha Proj", PertinentText: "new evidence", Tags: []string{"t"},
			}}
			_, err := newTestAggregator(store).Apply(context.Background(), d, types.Mention{Raw: "Alpha Proj", DocumentID: "doc-1"}, testModel)
			if err == nil {
				t.Fatal("expected injected failure")
			}

			p := mustProject(t, store, alpha.ID)
			if p.Narrative != "" || len(p.Aliases) != 0 || len(p.Tags) != 0 {
				t.Errorf("partial mutation persisted: %+v", p)
			}
			if n := logCount(t, store, "doc-1"); n != 0 {
				t.Errorf("log entry persisted without mutation: %d", n)
			}
		})
	}

	t.Run("create", func(t *testing.T) {
		store := memory.New()
		store.Fault = func(o string) error {
			if o == "write_log_entry" {
				return errors.New("injected crash")
			}
			return nil
		}
		d := types.Create{Evidence: types.Evidence{ConfirmedName: "Ghost Project"}}
		if _, err := newTestAggregator(store).Apply(context.Background(), d, types.Mention{Raw: "Ghost Project", DocumentID: "doc-1"}, testModel); err == nil {
			t.Fatal("expected injected failure")
		}
		if _, err := store.GetProjectByName(context.Background(), "Ghost Project"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("project persisted without its log entry: %v", err)
		}
	})
}

func TestApply_ConcurrentCreates(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.Storage{
		"memory": func(t *testing.T) storage.Storage { return memory.New() },
		"sqlite": func(t *testing.T) storage.Storage {
			s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "plog.db"))
			if err != nil {
				t.Fatalf("sqlite.New: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			agg := newTestAggregator(store)
			const workers = 8

			var wg sync.WaitGroup
			results := make([]*Result, workers)
			errs := make([]error, workers)
			for i := range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d := types.Create{Evidence: types.Evidence{
						ConfirmedName: "Greenfield CCS Study",
						PertinentText: fmt.Sprintf("evidence %d", i),
					}}
					m := types.Mention{Raw: "Greenfield CCS Study", DocumentID: fmt.Sprintf("doc-%d", i)}
					results[i], errs[i] = agg.Apply(context.Background(), d, m, testModel)
				}()
			}
			wg.Wait()

			created := 0
			for i := range workers {
				if errs[i] != nil {
					t.Fatalf("worker %d: %v", i, errs[i])
				}
				if results[i].Outcome == types.OutcomeCreated {
					created++
				}
			}
			if created != 1 {
				t.Errorf("created = %d, want exactly 1", created)
			}
			projects, err := store.ListProjects(context.Background(), types.ProjectFilter{})
			if err != nil {
				t.Fatalf("ListProjects: %v", err)
			}
			if len(projects) != 1 {
				t.Fatalf("projects = %d, want 1", len(projects))
			}
			entries, _ := store.GetLogEntries(context.Background(), projects[0].ID)
			if len(entries) != workers {
				t.Errorf("log entries = %d, want %d", len(entries), workers)
			}
			if got := strings.Count(projects[0].Narrative, "Source Document:"); got != workers {
				t.Errorf("narrative blocks = %d, want %d", got, workers)
			}
		})
	}
}
