// Package extractor runs model prompts over chunked document text: the
// candidate scanner that spots project-name mentions and the comprehensive
// extractor that pulls categorized verbatim facts.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/untoldecay/projectlog/internal/chunk"
	"github.com/untoldecay/projectlog/internal/llm"
)

// ErrPartialChunkFailure wraps the error of a single chunk that was skipped.
var ErrPartialChunkFailure = errors.New("chunk extraction failed")

// ChunkFailure records one skipped chunk.
type ChunkFailure struct {
	Index int
	Err   error
}

func (f ChunkFailure) Error() string {
	return fmt.Sprintf("chunk %d: %v", f.Index, f.Err)
}

func (f ChunkFailure) Unwrap() []error { return []error{ErrPartialChunkFailure, f.Err} }

// chunkFunc handles one window. Returning an error skips the window.
type chunkFunc func(ctx context.Context, w chunk.Window) error

// eachChunk runs fn over every window of text. Chunk errors are collected
// and skipped, except cancellation and an unavailable model service, which
// stop the loop and are returned.
func eachChunk(ctx context.Context, log *slog.Logger, text string, size, overlap int, fn chunkFunc) (chunks int, failures []ChunkFailure, err error) {
	seq, err := chunk.Windows(text, size, overlap)
	if err != nil {
		return 0, nil, err
	}
	for w := range seq {
		if err := ctx.Err(); err != nil {
			return chunks, failures, err
		}
		chunks++
		cerr := fn(ctx, w)
		if cerr == nil {
			continue
		}
		if errors.Is(cerr, llm.ErrServiceUnavailable) || ctx.Err() != nil {
			return chunks, failures, cerr
		}
		log.Warn("chunk extraction failed, skipping", "chunk", w.Index, "error", cerr)
		failures = append(failures, ChunkFailure{Index: w.Index, Err: cerr})
	}
	return chunks, failures, nil
}

// ContainsVerbatim reports whether snippet occurs in text, ignoring differences
// in whitespace runs.
func ContainsVerbatim(snippet, text string) bool {
	s := strings.Join(strings.Fields(snippet), " ")
	if s == "" {
		return false
	}
	if strings.Contains(text, s) {
		return true
	}
	return strings.Contains(strings.Join(strings.Fields(text), " "), s)
}

// Locate returns the rune offset of the first case-insensitive occurrence
// of name in text, or -1.
func Locate(text, name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1
	}
	lt := strings.ToLower(text)
	i := strings.Index(lt, strings.ToLower(name))
	if i < 0 {
		return -1
	}
	return len([]rune(lt[:i]))
}

func discard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
