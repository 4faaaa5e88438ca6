package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/projectlog/internal/types"
)

func TestRenderProjectList(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	projects := []*types.Project{
		{ID: 1, CanonicalName: "Project Alpha", Aliases: []string{"Alpha"}, Tags: []string{"ai"}, Category: "Research", UpdatedAt: now},
		{ID: 2, CanonicalName: "Beta Platform", UpdatedAt: now},
	}

	var buf bytes.Buffer
	RenderProjectList(&buf, projects, 0)
	out := buf.String()
	for _, want := range []string{"Project Alpha", "Beta Platform", "Research", "2 project(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderProjectListEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderProjectList(&buf, nil, 0)
	if !strings.Contains(buf.String(), "No projects found.") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRenderProject(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	p := &types.Project{
		ID:            7,
		CanonicalName: "Project Alpha",
		Aliases:       []string{"Alpha", "PA"},
		Narrative:     "---\nTimestamp: 2024-03-01T12:00:00Z\nSource Document: doc-1\n---\nAlpha ships in Q3.",
		Category:      "Research",
		SubCategory:   "ML",
		Scope:         "internal",
	}
	entries := []*types.LogEntry{
		{Action: types.ActionCreate, Mention: "Project Alpha", DocumentID: "doc-1", Confidence: 0.9, Model: "ollama/gemma2:9b"},
	}

	var buf bytes.Buffer
	RenderProject(&buf, p, entries, 0)
	out := buf.String()
	for _, want := range []string{"Project Alpha", "#7", "Alpha, PA", "Research / ML (internal)", "Alpha ships in Q3.", "doc-1", "create", "0.90"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	s := &types.Summary{
		DocumentID:    "doc-1",
		Mentions:      3,
		Created:       []types.ProjectRef{{ID: 1, Name: "Project Alpha", Mention: "Alpha"}},
		Linked:        []types.ProjectRef{{ID: 2, Name: "Beta", Mention: "beta"}},
		RejectedCount: 1,
		Errors:        []types.MentionError{{Mention: "Gamma", Outcome: types.OutcomeRejected, Reasoning: "invalid_model_output"}},
	}

	var buf bytes.Buffer
	RenderSummary(&buf, "notes.md", s)
	out := buf.String()
	for _, want := range []string{"notes.md", "mentions 3", "created 1", "linked 1", "rejected 1", "Project Alpha (#1)", `"Gamma" rejected: invalid_model_output`, "with errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEventsAndDocuments(t *testing.T) {
	events := []*types.ProcessingEvent{
		{Stage: types.StageAdjudication, Mention: "Alpha", Action: "link", ProjectID: 3, Reasoning: "same project", Notes: "warning"},
	}
	var buf bytes.Buffer
	RenderEvents(&buf, events, 0)
	for _, want := range []string{"adjudication", "Alpha", "#3", "same project; warning"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("events output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	RenderDocuments(&buf, []*types.Document{{ID: "doc-1", Name: "notes.md", Status: types.DocProcessed, Path: "/tmp/notes.md"}}, 0)
	for _, want := range []string{"doc-1", "notes.md", "processed"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("documents output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"maybe\n", false, false},
		{"", true, true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(tt.input), &out, "Continue?", tt.defaultYes); got != tt.want {
			t.Errorf("Confirm(%q, %v) = %v, want %v", tt.input, tt.defaultYes, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Continue? [") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate() = %q, want %q", got, "abcd…")
	}
}
