// Package categorize classifies projects into a fixed category schema using
// the accumulated narrative as evidence.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

// narrativeLimit bounds the narrative text sent to the model, in runes.
const narrativeLimit = 8000

// Result is a normalized classification.
type Result struct {
	ProjectID   int64  `json:"project_id"`
	Category    string `json:"category"`
	SubCategory string `json:"sub_category,omitempty"`
	Scope       string `json:"scope"`
}

// Categorizer asks the model to classify projects and stores the answer.
type Categorizer struct {
	gw     llm.Invoker
	store  storage.Storage
	schema *Schema
	log    *slog.Logger
}

// New returns a categorizer. A nil schema uses DefaultSchema.
func New(gw llm.Invoker, store storage.Storage, schema *Schema, log *slog.Logger) *Categorizer {
	if schema == nil {
		schema = DefaultSchema()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Categorizer{gw: gw, store: store, schema: schema, log: log}
}

type answer struct {
	Category    string `json:"category"`
	SubCategory string `json:"sub_category"`
	Scope       string `json:"scope"`
}

// Categorize classifies p and persists the result. Output that is not valid
// JSON is an error and leaves the project untouched.
func (c *Categorizer) Categorize(ctx context.Context, p *types.Project) (*Result, error) {
	raw, err := c.gw.Invoke(ctx, c.prompt(p), true, 0)
	if err != nil {
		return nil, fmt.Errorf("categorizing project %d: %w", p.ID, err)
	}
	var a answer
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("categorizing project %d: invalid model output: %w", p.ID, err)
	}

	cat, sub, scope := c.schema.Normalize(a.Category, a.SubCategory, a.Scope)
	if err := c.store.SetCategory(ctx, p.ID, cat, sub, scope); err != nil {
		return nil, err
	}
	c.log.Info("project categorized", "project", p.ID, "category", cat, "sub_category", sub, "scope", scope)
	return &Result{ProjectID: p.ID, Category: cat, SubCategory: sub, Scope: scope}, nil
}

func (c *Categorizer) prompt(p *types.Project) string {
	narrative := p.Narrative
	if r := []rune(narrative); len(r) > narrativeLimit {
		narrative = string(r[:narrativeLimit])
	}

	var cats strings.Builder
	for _, cat := range c.schema.Categories {
		fmt.Fprintf(&cats, "- %s", cat.Name)
		if len(cat.SubCategories) > 0 {
			fmt.Fprintf(&cats, " (sub-categories: %s)", strings.Join(cat.SubCategories, ", "))
		}
		cats.WriteString("\n")
	}

	return fmt.Sprintf(`Classify the engineering project below.

PROJECT: %s

CATEGORIES:
%s
SCOPES: %s

PROJECT LOG:
---
%s
---

Choose exactly one category, at most one of its sub-categories and one scope from the lists above.
Respond with JSON only: {"category": "", "sub_category": "", "scope": ""}
`, p.CanonicalName, cats.String(), strings.Join(c.schema.Scopes, ", "), narrative)
}
