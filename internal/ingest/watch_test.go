package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWatcher_DeliversDebouncedBatch(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, DefaultRegistry(), 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, paths []string) { batches <- paths })
	}()

	a := writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	b := writeFile(t, filepath.Join(dir, "b.md"), "beta")
	writeFile(t, filepath.Join(dir, "c.pdf"), "ignored")
	writeFile(t, filepath.Join(dir, ".hidden.txt"), "ignored")

	var got []string
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case batch := <-batches:
			got = append(got, batch...)
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if diff := cmp.Diff([]string{a, b}, got); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
