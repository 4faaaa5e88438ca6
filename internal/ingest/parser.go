// Package ingest turns files on disk into source documents: it parses
// supported formats, discovers new or changed files under a folder and
// watches a folder for arrivals.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/untoldecay/projectlog/internal/types"
)

// Parser extracts text and location references from one file format.
type Parser interface {
	Extensions() []string // lower-case, with the leading dot
	Parse(path string) (*types.SourceDocument, error)
}

// DocumentID derives the stable document id for path.
func DocumentID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	sum := sha256.Sum256([]byte(abs))
	return "doc-" + hex.EncodeToString(sum[:])[:12], nil
}

// Registry maps file extensions to parsers.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry registers parsers. A later parser wins an extension clash.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// DefaultRegistry handles plain text and markdown.
func DefaultRegistry() *Registry { return NewRegistry(TextParser{}) }

// Restrict drops every extension not in exts. An empty list keeps all.
func (r *Registry) Restrict(exts []string) *Registry {
	if len(exts) == 0 {
		return r
	}
	keep := make(map[string]Parser)
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if p, ok := r.byExt[ext]; ok {
			keep[ext] = p
		}
	}
	return &Registry{byExt: keep}
}

// Lookup returns the parser for path's extension.
func (r *Registry) Lookup(path string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// Extensions lists the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Parse parses path with the matching parser.
func (r *Registry) Parse(path string) (*types.SourceDocument, error) {
	p, ok := r.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("no parser for %s", path)
	}
	return p.Parse(path)
}

// TextParser reads .txt and .md files. Form feeds start a new page; in
// markdown a line holding only "---" starts a new slide.
type TextParser struct{}

func (TextParser) Extensions() []string { return []string{".txt", ".md", ".markdown"} }

// Parse reads path as UTF-8, replacing invalid bytes.
func (TextParser) Parse(path string) (*types.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	id, err := DocumentID(path)
	if err != nil {
		return nil, err
	}

	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	ext := strings.ToLower(filepath.Ext(path))

	var locs []types.Location
	if strings.Contains(text, "\f") {
		locs = pageLocations(text)
		// One rune for one rune, so offsets stay valid.
		text = strings.ReplaceAll(text, "\f", "\n")
	} else if ext == ".md" || ext == ".markdown" {
		locs = slideLocations(text)
	}

	return &types.SourceDocument{
		ID:        id,
		Path:      path,
		Name:      filepath.Base(path),
		Type:      strings.TrimPrefix(ext, "."),
		Text:      text,
		Locations: locs,
		ModTime:   info.ModTime(),
	}, nil
}

func pageLocations(text string) []types.Location {
	locs := []types.Location{{Ref: "page 1", Offset: 0}}
	offset := 0
	for _, r := range text {
		offset++
		if r == '\f' {
			locs = append(locs, types.Location{Ref: fmt.Sprintf("page %d", len(locs)+1), Offset: offset})
		}
	}
	return locs
}

func slideLocations(text string) []types.Location {
	var locs []types.Location
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if strings.TrimSpace(line) == "---" {
			if len(locs) == 0 {
				locs = append(locs, types.Location{Ref: "slide 1", Offset: 0})
			}
			locs = append(locs, types.Location{Ref: fmt.Sprintf("slide %d", len(locs)+1), Offset: offset + n})
		}
		offset += n
	}
	return locs
}
