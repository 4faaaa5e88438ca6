package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/llm/llmtest"
)

const reportText = `Kaybob South Gas Plant expansion.
The client approved a $2.5M budget for phase one.
Lead engineer: Jane Doe.
Mechanical completion on 15/03/2021.
The plant uses amine scrubbing for sweetening.`

func newTestComprehensive(t *testing.T, p *llmtest.Provider, cfg ComprehensiveConfig) *Comprehensive {
	t.Helper()
	c, err := NewComprehensive(llmtest.Gateway(p), cfg, nil)
	if err != nil {
		t.Fatalf("NewComprehensive: %v", err)
	}
	c.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestComprehensive_Extract(t *testing.T) {
	p := llmtest.New().QueueText(`{
		"financials": ["The client approved a $2.5M budget for phase one."],
		"personnel": "Lead engineer: Jane Doe.",
		"dates_milestones": ["Mechanical completion on 15/03/2021."],
		"technologies": ["amine scrubbing", "a paraphrase that is not in the text"],
		"locations": [],
		"unknown_key": ["ignored"]
	}`)
	c := newTestComprehensive(t, p, DefaultComprehensiveConfig())

	rec, err := c.Extract(context.Background(), "doc-1", reportText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.DocumentID != "doc-1" || rec.Model != "llmtest/scripted" || rec.Chunks != 1 {
		t.Errorf("unexpected record header: %+v", rec)
	}
	if rec.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", rec.Dropped)
	}

	want := map[string][]Fact{
		CategoryFinancials:      {{Text: "The client approved a $2.5M budget for phase one."}},
		CategoryPersonnel:       {{Text: "Lead engineer: Jane Doe."}},
		CategoryDatesMilestones: {{Text: "Mechanical completion on 15/03/2021.", Date: "2021-03-15"}},
		CategoryTechnologies:    {{Text: "amine scrubbing"}},
		CategoryLocations:       {},
		CategoryClientsPartners: {},
		CategoryScopeOfWork:     {},
		CategoryRisksChallenges: {},
	}
	if diff := cmp.Diff(want, rec.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
	if rec.Total() != 4 {
		t.Errorf("Total = %d, want 4", rec.Total())
	}
}

func TestComprehensive_DedupesAcrossChunksAndSkipsFailures(t *testing.T) {
	text := strings.Repeat("x", 40) + " Phase 2 delayed by permits " + strings.Repeat("y", 40)
	p := llmtest.New().QueueText(
		`{"risks_challenges": ["Phase 2 delayed by permits"]}`,
		`not json`,
		`{"risks_challenges": ["Phase 2  delayed  by permits", "phase 2 delayed by permits"]}`,
	)
	c := newTestComprehensive(t, p, ComprehensiveConfig{Window: 80, Overlap: 60})

	rec, err := c.Extract(context.Background(), "doc-2", text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Chunks != 3 || rec.FailedChunks != 1 {
		t.Errorf("chunks = %d, failed = %d, want 3/1", rec.Chunks, rec.FailedChunks)
	}
	got := rec.Categories[CategoryRisksChallenges]
	if len(got) != 1 || got[0].Text != "Phase 2 delayed by permits" {
		t.Errorf("unexpected risks: %+v", got)
	}
	if rec.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 (case-changed snippet)", rec.Dropped)
	}
}

func TestComprehensive_ServiceUnavailable(t *testing.T) {
	p := llmtest.New().Default(llmtest.Reply{Err: &llm.StatusError{Provider: "test", Code: 500}})
	c := newTestComprehensive(t, p, DefaultComprehensiveConfig())
	if _, err := c.Extract(context.Background(), "doc-3", reportText); !errors.Is(err, llm.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestParseCategories_Invalid(t *testing.T) {
	if _, err := parseCategories(`["not", "an", "object"]`); err == nil {
		t.Fatal("expected error for non-object response")
	}
}
