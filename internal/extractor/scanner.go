package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/untoldecay/projectlog/internal/chunk"
	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/types"
)

// Scanner defaults. The overlap is wide enough that a name straddling a
// boundary appears whole in at least one window.
const (
	DefaultScanWindow      = 4000
	DefaultScanOverlap     = 400
	DefaultScanTemperature = 0.1

	minNameRunes = 4
)

// ScanConfig tunes the candidate scanner.
type ScanConfig struct {
	Window      int
	Overlap     int
	Temperature float64
}

// DefaultScanConfig returns the scanner defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{Window: DefaultScanWindow, Overlap: DefaultScanOverlap, Temperature: DefaultScanTemperature}
}

// ScanResult is the outcome of scanning one document.
type ScanResult struct {
	Names    []string
	Chunks   int
	Failures []ChunkFailure
}

// AllFailed reports whether every chunk failed, in which case the caller
// flags the document extraction_failed.
func (r *ScanResult) AllFailed() bool {
	return r.Chunks > 0 && len(r.Failures) == r.Chunks
}

// Scanner finds candidate project-name mentions in document text.
type Scanner struct {
	gw  llm.Invoker
	cfg ScanConfig
	log *slog.Logger
}

// NewScanner validates cfg and returns a scanner.
func NewScanner(gw llm.Invoker, cfg ScanConfig, log *slog.Logger) (*Scanner, error) {
	if err := chunk.Validate(cfg.Window, cfg.Overlap); err != nil {
		return nil, fmt.Errorf("scan window: %w", err)
	}
	return &Scanner{gw: gw, cfg: cfg, log: discard(log)}, nil
}

// Scan returns the deduplicated candidate names in first-seen order. Failed
// chunks are skipped and reported in the result. An error is returned only
// for cancellation or an unavailable model service.
func (s *Scanner) Scan(ctx context.Context, text string) (*ScanResult, error) {
	res := &ScanResult{}
	seen := make(map[string]bool)

	chunks, failures, err := eachChunk(ctx, s.log, text, s.cfg.Window, s.cfg.Overlap, func(ctx context.Context, w chunk.Window) error {
		raw, err := s.gw.Invoke(ctx, scanPrompt(w.Text), true, s.cfg.Temperature)
		if err != nil {
			return err
		}
		names, err := parseNames(raw)
		if err != nil {
			return err
		}
		for _, name := range names {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Names = append(res.Names, name)
		}
		return nil
	})
	res.Chunks, res.Failures = chunks, failures
	if err != nil {
		return res, err
	}
	s.log.Debug("scan complete", "chunks", chunks, "failed", len(failures), "names", len(res.Names))
	return res, nil
}

// Mentions turns scanned names into mentions located in doc.
func Mentions(doc *types.SourceDocument, names []string) []types.Mention {
	out := make([]types.Mention, 0, len(names))
	for _, name := range names {
		off := Locate(doc.Text, name)
		out = append(out, types.Mention{
			Raw:        name,
			DocumentID: doc.ID,
			Location:   doc.LocationAt(off),
			Offset:     off,
		})
	}
	return out
}

type scanResponse struct {
	ProjectNames []json.RawMessage `json:"project_names"`
}

// parseNames decodes {"project_names": [...]}, dropping non-strings and
// names shorter than four runes.
func parseNames(raw string) ([]string, error) {
	var resp scanResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("invalid scan response: %w", err)
	}
	var names []string
	for _, item := range resp.ProjectNames {
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			continue
		}
		name = types.NormalizeName(name)
		if len([]rune(name)) < minNameRunes {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func scanPrompt(text string) string {
	return fmt.Sprintf(`You are an assistant for an engineering company. Identify the names of specific engineering or construction projects mentioned in the text below.

INSTRUCTIONS:
- Extract proper names that refer to a project (e.g. "Kaybob South Gas Plant", "West Doe Battery"), copied exactly as written.
- Do NOT extract company, client, contractor or vendor names.
- Do NOT extract generic terms like "the project" or "the facility" unless they are part of a specific name.
- Respond with a JSON object with a single key "project_names" holding a list of strings.
- If no project names are found, respond with {"project_names": []}

TEXT TO ANALYZE:
---
%s
---
`, text)
}
