package audit

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", FileName)
	if err := EnsureFile(p); err != nil {
		t.Fatalf("EnsureFile: %v", err)
	}

	id, err := Append(p, &Entry{Kind: "llm_call", Model: "llama3.2:3b", Prompt: "p", Response: "r"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !strings.HasPrefix(id, idPrefix) {
		t.Errorf("id %q missing prefix %q", id, idPrefix)
	}

	entries, err := ReadAll(p)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if entries[0].Response != "r" {
		t.Errorf("Response = %q, want %q", entries[0].Response, "r")
	}
}

func TestAppend_RequiresKind(t *testing.T) {
	p := filepath.Join(t.TempDir(), FileName)
	if _, err := Append(p, &Entry{}); err == nil {
		t.Fatal("expected error for missing kind")
	}
	if _, err := Append(p, nil); err == nil {
		t.Fatal("expected error for nil entry")
	}
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	p := filepath.Join(t.TempDir(), FileName)
	r, err := NewRecorder(p, 16, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for i := 0; i < 5; i++ {
		r.Record(&Entry{Kind: "llm_call"})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// recording after close is a no-op
	r.Record(&Entry{Kind: "llm_call"})

	entries, err := ReadAll(p)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	dropped, failed := r.Stats()
	if len(entries)+dropped != 5 {
		t.Errorf("entries %d + dropped %d != 5", len(entries), dropped)
	}
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	r.Record(&Entry{Kind: "llm_call"})
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil recorder: %v", err)
	}
}
