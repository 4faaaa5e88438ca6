package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/llm/llmtest"
	"github.com/untoldecay/projectlog/internal/types"
)

// twoChunkText yields exactly two windows with a 50/10 scan config.
var twoChunkText = strings.Repeat("a", 80)

func newTestScanner(t *testing.T, p *llmtest.Provider) *Scanner {
	t.Helper()
	s, err := NewScanner(llmtest.Gateway(p), ScanConfig{Window: 50, Overlap: 10, Temperature: 0.1}, nil)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	return s
}

func TestNewScanner_RejectsInvalidWindow(t *testing.T) {
	_, err := NewScanner(llmtest.Gateway(llmtest.New()), ScanConfig{Window: 10, Overlap: 10}, nil)
	if err == nil {
		t.Fatal("expected error for overlap == window")
	}
}

func TestScan_DedupesAcrossChunks(t *testing.T) {
	p := llmtest.New().QueueText(
		`{"project_names": ["Project Alpha", "ABC", " project  alpha ", 42]}`,
		"```json\n{\"project_names\": [\"PROJECT ALPHA\", \"Greenfield CCS Study\"]}\n```",
	)
	res, err := newTestScanner(t, p).Scan(context.Background(), twoChunkText)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"Project Alpha", "Greenfield CCS Study"}
	if diff := cmp.Diff(want, res.Names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if res.Chunks != 2 || len(res.Failures) != 0 {
		t.Errorf("chunks = %d, failures = %d", res.Chunks, len(res.Failures))
	}
	calls := p.Calls()
	if !calls[0].Opts.JSON || calls[0].Opts.Temperature != 0.1 {
		t.Errorf("unexpected call options: %+v", calls[0].Opts)
	}
}

func TestScan_SkipsFailedChunk(t *testing.T) {
	p := llmtest.New().QueueText(
		"I could not find anything, sorry!",
		`{"project_names": ["West Doe Battery"]}`,
	)
	res, err := newTestScanner(t, p).Scan(context.Background(), twoChunkText)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if diff := cmp.Diff([]string{"West Doe Battery"}, res.Names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if len(res.Failures) != 1 || res.Failures[0].Index != 0 {
		t.Fatalf("expected chunk 0 to fail, got %+v", res.Failures)
	}
	if !errors.Is(res.Failures[0], ErrPartialChunkFailure) {
		t.Errorf("failure should match ErrPartialChunkFailure")
	}
	if res.AllFailed() {
		t.Error("AllFailed should be false")
	}
}

func TestScan_AllChunksFail(t *testing.T) {
	p := llmtest.New().Default(llmtest.Reply{Err: &llm.StatusError{Provider: "test", Code: 400}})
	res, err := newTestScanner(t, p).Scan(context.Background(), twoChunkText)
	if err != nil {
		t.Fatalf("Scan should not fail on chunk errors: %v", err)
	}
	if !res.AllFailed() || len(res.Names) != 0 {
		t.Errorf("expected all chunks failed and no names, got %+v", res)
	}
}

func TestScan_ServiceUnavailableAborts(t *testing.T) {
	p := llmtest.New().Default(llmtest.Reply{Err: &llm.StatusError{Provider: "test", Code: 503}})
	res, err := newTestScanner(t, p).Scan(context.Background(), twoChunkText)
	if !errors.Is(err, llm.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if res.Chunks != 1 {
		t.Errorf("scan should stop after the first chunk, got %d", res.Chunks)
	}
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := llmtest.New().Default(llmtest.Reply{Text: `{"project_names": []}`})
	_, err := newTestScanner(t, p).Scan(ctx, twoChunkText)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.CallCount() != 0 {
		t.Errorf("no model call expected after cancellation, got %d", p.CallCount())
	}
}

func TestScan_EmptyText(t *testing.T) {
	res, err := newTestScanner(t, llmtest.New()).Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Chunks != 0 || res.AllFailed() || len(res.Names) != 0 {
		t.Errorf("unexpected result for empty text: %+v", res)
	}
}

func TestLocate(t *testing.T) {
	text := "Über das Projekt: the Project Alpha kickoff."
	if got := Locate(text, "project alpha"); got != 22 {
		t.Errorf("Locate = %d, want 22", got)
	}
	if got := Locate(text, "Beta"); got != -1 {
		t.Errorf("Locate missing = %d, want -1", got)
	}
	if got := Locate(text, "  "); got != -1 {
		t.Errorf("Locate blank = %d, want -1", got)
	}
}

func TestMentions(t *testing.T) {
	doc := &types.SourceDocument{
		ID:   "doc-1",
		Text: "page one text\fpage two mentions West Doe Battery",
		Locations: []types.Location{
			{Ref: "page 1", Offset: 0},
			{Ref: "page 2", Offset: 14},
		},
	}
	got := Mentions(doc, []string{"West Doe Battery", "Unseen Name"})
	want := []types.Mention{
		{Raw: "West Doe Battery", DocumentID: "doc-1", Location: "page 2", Offset: 32},
		{Raw: "Unseen Name", DocumentID: "doc-1", Location: "", Offset: -1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mentions mismatch (-want +got):\n%s", diff)
	}
}
