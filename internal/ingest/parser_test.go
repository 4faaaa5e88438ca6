package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/untoldecay/projectlog/internal/types"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTextParser_Pages(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "report.txt"), "Intro\fAlpha Proj\fEnd")

	doc, err := TextParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []types.Location{
		{Ref: "page 1", Offset: 0},
		{Ref: "page 2", Offset: 6},
		{Ref: "page 3", Offset: 17},
	}
	if diff := cmp.Diff(want, doc.Locations); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}
	if doc.Text != "Intro\nAlpha Proj\nEnd" {
		t.Errorf("text = %q", doc.Text)
	}
	if got := doc.LocationAt(strings.Index(doc.Text, "Alpha")); got != "page 2" {
		t.Errorf("LocationAt = %q", got)
	}
	if doc.Type != "txt" || doc.Name != "report.txt" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestTextParser_Slides(t *testing.T) {
	text := "# Title\n---\nSlide two\n---\nSlide three\n"
	path := writeFile(t, filepath.Join(t.TempDir(), "deck.md"), text)

	doc, err := TextParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []types.Location{
		{Ref: "slide 1", Offset: 0},
		{Ref: "slide 2", Offset: 12},
		{Ref: "slide 3", Offset: 26},
	}
	if diff := cmp.Diff(want, doc.Locations); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}
	if got := doc.LocationAt(strings.Index(text, "Slide three")); got != "slide 3" {
		t.Errorf("LocationAt = %q", got)
	}
}

func TestTextParser_PlainTextHasNoLocations(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "notes.txt"), "a\n---\nb")
	doc, err := TextParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Locations) != 0 {
		t.Errorf("slide separators only apply to markdown, got %+v", doc.Locations)
	}
}

func TestTextParser_InvalidUTF8(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "bad.txt"), "ok \xff\xfe done")
	doc, err := TextParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Text != "ok � done" {
		t.Errorf("text = %q", doc.Text)
	}
}

func TestDocumentID(t *testing.T) {
	dir := t.TempDir()
	a, err := DocumentID(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	again, _ := DocumentID(filepath.Join(dir, ".", "a.txt"))
	b, _ := DocumentID(filepath.Join(dir, "b.txt"))

	if !strings.HasPrefix(a, "doc-") || len(a) != 16 {
		t.Errorf("id = %q", a)
	}
	if a != again {
		t.Error("id should depend on the cleaned absolute path only")
	}
	if a == b {
		t.Error("different paths should get different ids")
	}
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	if _, ok := reg.Lookup("X.MD"); !ok {
		t.Error("lookup should ignore case")
	}
	if _, ok := reg.Lookup("x.pdf"); ok {
		t.Error("pdf has no parser")
	}
	if _, err := reg.Parse("x.pdf"); err == nil {
		t.Error("Parse should fail without a parser")
	}

	txtOnly := reg.Restrict([]string{"txt"})
	if diff := cmp.Diff([]string{".txt"}, txtOnly.Extensions()); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(reg.Extensions(), reg.Restrict(nil).Extensions()); diff != "" {
		t.Errorf("empty restriction should keep everything:\n%s", diff)
	}
}
