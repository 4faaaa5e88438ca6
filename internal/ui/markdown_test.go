package ui

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitNarrative(t *testing.T) {
	narrative := "---\nTimestamp: 2024-03-01T12:00:00Z\nSource Document: doc-1\n---\nFirst evidence." +
		"\n\n---\nTimestamp: 2024-03-02T08:30:00Z\nSource Document: doc-2\n---\nSecond evidence\nspans lines."

	got := SplitNarrative(narrative)
	want := []NarrativeBlock{
		{Timestamp: "2024-03-01T12:00:00Z", Source: "doc-1", Text: "First evidence."},
		{Timestamp: "2024-03-02T08:30:00Z", Source: "doc-2", Text: "Second evidence\nspans lines."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitNarrative mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitNarrativeWithoutHeaders(t *testing.T) {
	got := SplitNarrative("  plain notes  ")
	want := []NarrativeBlock{{Text: "plain notes"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitNarrative mismatch (-want +got):\n%s", diff)
	}
	if got := SplitNarrative(""); len(got) != 0 {
		t.Errorf("SplitNarrative(\"\") = %v, want empty", got)
	}
}

func TestNarrativeMarkdown(t *testing.T) {
	narrative := "---\nTimestamp: 2024-03-01T12:00:00Z\nSource Document: doc-1\n---\nFirst evidence."
	want := "#### doc-1 · 2024-03-01T12:00:00Z\n\nFirst evidence."
	if got := NarrativeMarkdown(narrative); got != want {
		t.Errorf("NarrativeMarkdown() = %q, want %q", got, want)
	}
}

func TestRenderMarkdownWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	md := "# Title\n\nbody"
	if got := RenderMarkdown(md, 80); got != md {
		t.Errorf("RenderMarkdown() = %q, want input unchanged", got)
	}
}
