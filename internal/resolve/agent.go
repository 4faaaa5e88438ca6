// Package resolve adjudicates one mention at a time: it shortlists registry
// projects, asks the model for a structured decision and validates the
// answer into a types.Decision.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/untoldecay/projectlog/internal/extractor"
	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/matcher"
	"github.com/untoldecay/projectlog/internal/types"
)

// Config tunes adjudication.
type Config struct {
	ContextBudget int // documents up to this many runes are sent whole
	SnippetBudget int // rune budget for the excerpt of longer documents
	Temperature   float64
	MaxTags       int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ContextBudget: 12000,
		SnippetBudget: 6000,
		Temperature:   0.1,
		MaxTags:       DefaultMaxTags,
	}
}

// State is a step in a mention's lifecycle.
type State string

const (
	StateScanned     State = "scanned"
	StateShortlisted State = "shortlisted"
	StateAdjudicated State = "adjudicated"
	StateLinked      State = "linked"
	StateCreated     State = "created"
	StateRejected    State = "rejected"
)

// Adjudication is the record of resolving one mention.
type Adjudication struct {
	Mention   types.Mention
	Shortlist []matcher.Candidate
	Decision  types.Decision
	Raw       string  // model output after fence stripping
	States    []State // transitions taken, in order
	Err       error   // validation failure that forced a rejection, if any
	Warnings  []string
}

// Final returns the terminal state.
func (a *Adjudication) Final() State {
	if len(a.States) == 0 {
		return ""
	}
	return a.States[len(a.States)-1]
}

// Forced reports whether the decision was downgraded to a rejection.
func (a *Adjudication) Forced() bool { return a.Err != nil }

func (a *Adjudication) enter(s State) { a.States = append(a.States, s) }

// Agent resolves mentions against the live registry.
type Agent struct {
	gw       llm.Invoker
	matcher  *matcher.Matcher
	registry matcher.Registry
	cfg      Config
	log      *slog.Logger
}

// NewAgent returns an agent. Zero config fields fall back to DefaultConfig.
func NewAgent(gw llm.Invoker, m *matcher.Matcher, reg matcher.Registry, cfg Config, log *slog.Logger) *Agent {
	def := DefaultConfig()
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = def.ContextBudget
	}
	if cfg.SnippetBudget <= 0 {
		cfg.SnippetBudget = def.SnippetBudget
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = def.MaxTags
	}
	if m == nil {
		m = matcher.New(matcher.DefaultK, matcher.DefaultMinScore)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Agent{gw: gw, matcher: m, registry: reg, cfg: cfg, log: log}
}

// Resolve takes one mention from SCANNED to LINKED, CREATED or REJECTED.
//
// Model output that fails validation never surfaces as an error: the
// decision becomes a Reject whose reasoning names the failure and
// Adjudication.Err holds the cause. An error is returned only when no
// decision could be reached at all (registry unreadable, model service
// unavailable, cancellation); the Adjudication is still returned so the
// caller can record how far the mention got.
func (a *Agent) Resolve(ctx context.Context, doc *types.SourceDocument, mention types.Mention) (*Adjudication, error) {
	adj := &Adjudication{Mention: mention}
	adj.enter(StateScanned)

	shortlist, err := a.matcher.Match(ctx, mention.Raw, a.registry)
	if err != nil {
		return adj, err
	}
	adj.Shortlist = shortlist
	adj.enter(StateShortlisted)

	snippet := BuildSnippet(doc.Text, mention.Offset, len([]rune(mention.Raw)), a.cfg.ContextBudget, a.cfg.SnippetBudget)
	prompt := adjudicationPrompt(mention.Raw, snippet, shortlist, a.cfg.MaxTags)

	raw, err := a.gw.Invoke(ctx, prompt, true, a.cfg.Temperature)
	if err != nil {
		return adj, fmt.Errorf("adjudicating %q: %w", mention.Raw, err)
	}
	adj.Raw = raw
	adj.enter(StateAdjudicated)

	decision, err := ParseDecision(raw, shortlist, a.cfg.MaxTags)
	switch {
	case errors.Is(err, ErrHallucinatedReference):
		a.log.Warn("model linked outside the shortlist", "document", doc.ID, "mention", mention.Raw, "error", err)
		adj.Err = err
		decision = types.Reject{Evidence: types.Evidence{Reasoning: ReasonIDNotInShortlist}}
	case err != nil:
		a.log.Warn("invalid model output", "document", doc.ID, "mention", mention.Raw, "error", err)
		adj.Err = err
		decision = types.Reject{Evidence: types.Evidence{Reasoning: ReasonInvalidOutput}}
	}

	if link, ok := decision.(types.Link); ok && link.ConfirmedName == "" {
		link.ConfirmedName = types.NormalizeName(mention.Raw)
		decision = link
	}
	if ev := decision.Details(); ev.PertinentText != "" && !extractor.ContainsVerbatim(ev.PertinentText, doc.Text) {
		adj.Warnings = append(adj.Warnings, "pertinent_text is not verbatim from the document")
		a.log.Warn("pertinent text not found verbatim", "document", doc.ID, "mention", mention.Raw)
	}

	adj.Decision = decision
	switch decision.Action() {
	case types.ActionLink:
		adj.enter(StateLinked)
	case types.ActionCreate:
		adj.enter(StateCreated)
	default:
		adj.enter(StateRejected)
	}
	return adj, nil
}
