package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/untoldecay/projectlog/internal/chunk"
	"github.com/untoldecay/projectlog/internal/llm"
)

// Comprehensive extractor defaults: larger windows than the scanner since
// nothing needs to be centred on a single mention.
const (
	DefaultComprehensiveWindow  = 8000
	DefaultComprehensiveOverlap = 800
)

// Taxonomy categories, in output order.
const (
	CategoryFinancials      = "financials"
	CategoryPersonnel       = "personnel"
	CategoryDatesMilestones = "dates_milestones"
	CategoryTechnologies    = "technologies"
	CategoryLocations       = "locations"
	CategoryClientsPartners = "clients_partners"
	CategoryScopeOfWork     = "scope_of_work"
	CategoryRisksChallenges = "risks_challenges"
)

// Taxonomy is the fixed set of categories requested from every chunk.
var Taxonomy = []string{
	CategoryFinancials,
	CategoryPersonnel,
	CategoryDatesMilestones,
	CategoryTechnologies,
	CategoryLocations,
	CategoryClientsPartners,
	CategoryScopeOfWork,
	CategoryRisksChallenges,
}

var taxonomyHints = map[string]string{
	CategoryFinancials:      "budgets, costs, contract values, rates",
	CategoryPersonnel:       "people, roles, teams",
	CategoryDatesMilestones: "dates, deadlines, phases, milestones",
	CategoryTechnologies:    "equipment, software, processes, standards",
	CategoryLocations:       "sites, cities, regions, facilities",
	CategoryClientsPartners: "clients, partners, contractors, vendors",
	CategoryScopeOfWork:     "deliverables and work performed",
	CategoryRisksChallenges: "risks, issues, delays, constraints",
}

// ComprehensiveConfig tunes the comprehensive extractor.
type ComprehensiveConfig struct {
	Window      int
	Overlap     int
	Temperature float64
}

// DefaultComprehensiveConfig returns the comprehensive extractor defaults.
func DefaultComprehensiveConfig() ComprehensiveConfig {
	return ComprehensiveConfig{Window: DefaultComprehensiveWindow, Overlap: DefaultComprehensiveOverlap}
}

// Fact is one verbatim snippet. Date is set for date facts the parser
// could resolve, as YYYY-MM-DD.
type Fact struct {
	Text string `json:"text"`
	Date string `json:"date,omitempty"`
}

// Record is the structured side-record stored per document.
type Record struct {
	DocumentID   string            `json:"document_id"`
	Model        string            `json:"model"`
	ExtractedAt  time.Time         `json:"extracted_at"`
	Chunks       int               `json:"chunks"`
	FailedChunks int               `json:"failed_chunks"`
	Dropped      int               `json:"dropped_non_verbatim,omitempty"`
	Categories   map[string][]Fact `json:"categories"`
}

// Total returns the number of facts across categories.
func (r *Record) Total() int {
	n := 0
	for _, facts := range r.Categories {
		n += len(facts)
	}
	return n
}

// Comprehensive pulls categorized verbatim facts from a document.
type Comprehensive struct {
	gw    llm.Invoker
	cfg   ComprehensiveConfig
	log   *slog.Logger
	dates *when.Parser
	now   func() time.Time
}

// NewComprehensive validates cfg and returns an extractor.
func NewComprehensive(gw llm.Invoker, cfg ComprehensiveConfig, log *slog.Logger) (*Comprehensive, error) {
	if err := chunk.Validate(cfg.Window, cfg.Overlap); err != nil {
		return nil, fmt.Errorf("comprehensive window: %w", err)
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Comprehensive{gw: gw, cfg: cfg, log: discard(log), dates: w, now: time.Now}, nil
}

// Extract runs the taxonomy prompt over every chunk and merges the results,
// de-duplicating per category in first-seen order. Snippets that do not
// appear in their chunk are dropped.
func (c *Comprehensive) Extract(ctx context.Context, documentID, text string) (*Record, error) {
	rec := &Record{
		DocumentID: documentID,
		Model:      c.gw.Model(),
		Categories: make(map[string][]Fact, len(Taxonomy)),
	}
	seen := make(map[string]map[string]bool, len(Taxonomy))
	for _, cat := range Taxonomy {
		seen[cat] = make(map[string]bool)
		rec.Categories[cat] = []Fact{}
	}

	chunks, failures, err := eachChunk(ctx, c.log, text, c.cfg.Window, c.cfg.Overlap, func(ctx context.Context, w chunk.Window) error {
		raw, err := c.gw.Invoke(ctx, comprehensivePrompt(w.Text), true, c.cfg.Temperature)
		if err != nil {
			return err
		}
		parsed, err := parseCategories(raw)
		if err != nil {
			return err
		}
		for _, cat := range Taxonomy {
			for _, snippet := range parsed[cat] {
				if !ContainsVerbatim(snippet, w.Text) {
					rec.Dropped++
					continue
				}
				key := strings.ToLower(strings.Join(strings.Fields(snippet), " "))
				if seen[cat][key] {
					continue
				}
				seen[cat][key] = true
				fact := Fact{Text: strings.TrimSpace(snippet)}
				if cat == CategoryDatesMilestones {
					fact.Date = c.parseDate(fact.Text)
				}
				rec.Categories[cat] = append(rec.Categories[cat], fact)
			}
		}
		return nil
	})
	rec.Chunks = chunks
	rec.FailedChunks = len(failures)
	rec.ExtractedAt = c.now().UTC()
	if err != nil {
		return rec, err
	}
	if rec.Dropped > 0 {
		c.log.Info("dropped non-verbatim snippets", "document", documentID, "count", rec.Dropped)
	}
	return rec, nil
}

func (c *Comprehensive) parseDate(text string) string {
	r, err := c.dates.Parse(text, c.now())
	if err != nil || r == nil {
		return ""
	}
	return r.Time.Format("2006-01-02")
}

// parseCategories decodes the model's object, keeping string items of
// known categories. A category may also arrive as a single string.
func parseCategories(raw string) (map[string][]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("invalid comprehensive response: %w", err)
	}
	out := make(map[string][]string, len(Taxonomy))
	for _, cat := range Taxonomy {
		v, ok := obj[cat]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(v, &list); err != nil {
			var single string
			if json.Unmarshal(v, &single) == nil && strings.TrimSpace(single) != "" {
				out[cat] = []string{single}
			}
			continue
		}
		for _, item := range list {
			var s string
			if json.Unmarshal(item, &s) == nil && strings.TrimSpace(s) != "" {
				out[cat] = append(out[cat], s)
			}
		}
	}
	return out, nil
}

func comprehensivePrompt(text string) string {
	var keys strings.Builder
	for _, cat := range Taxonomy {
		fmt.Fprintf(&keys, "- %q: %s\n", cat, taxonomyHints[cat])
	}
	return fmt.Sprintf(`You extract facts from engineering project documents.

For each category below, list every passage of the text that states a fact in that category.

CATEGORIES:
%s
RULES:
- Copy each passage EXACTLY as it appears in the text. Do not summarize, rephrase or translate.
- Respond with one JSON object whose keys are exactly the category names above, each holding a list of strings.
- Use an empty list for a category with no facts.

TEXT:
---
%s
---
`, keys.String(), text)
}
