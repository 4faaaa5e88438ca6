// Package aggregate applies validated decisions to the project registry.
// Each decision is applied in a single transaction together with its log
// entry, so a mention is either fully recorded or not recorded at all.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

// Result describes what Apply changed.
type Result struct {
	ProjectID     int64 // zero for rejections
	ProjectName   string
	Outcome       types.Outcome
	AliasesAdded  []string
	Appended      bool // narrative grew
	DuplicateRace bool // a create collided with an existing name and was linked instead
	LogEntryID    int64
}

// Aggregator owns every registry mutation made by the pipeline.
type Aggregator struct {
	store storage.Storage
	log   *slog.Logger
	now   func() time.Time
}

// New returns an aggregator writing to store.
func New(store storage.Storage, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Apply records decision for mention. model identifies the model that made
// the decision and is stored on the log entry.
//
// The transaction runs detached from ctx cancellation: once started, a
// mention's mutation and log entry are committed together.
func (a *Aggregator) Apply(ctx context.Context, decision types.Decision, mention types.Mention, model string) (*Result, error) {
	if decision == nil {
		return nil, errors.New("nil decision")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res *Result
	err := a.store.RunInTransaction(context.WithoutCancel(ctx), func(tx storage.Transaction) error {
		res = &Result{}
		switch d := decision.(type) {
		case types.Create:
			return a.create(ctx, tx, d, mention, model, res)
		case types.Link:
			return a.link(ctx, tx, d.ProjectID, d.Evidence, mention, model, res)
		case types.Reject:
			res.Outcome = types.OutcomeRejected
			return a.writeLog(ctx, tx, 0, types.ActionReject, d.Evidence, mention, model, res)
		default:
			return fmt.Errorf("unknown decision %T", decision)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("applying %s for %q: %w", decision.Action(), mention.Raw, err)
	}

	a.log.Debug("decision applied",
		"document", mention.DocumentID,
		"mention", mention.Raw,
		"outcome", res.Outcome,
		"project", res.ProjectID)
	return res, nil
}

func (a *Aggregator) create(ctx context.Context, tx storage.Transaction, d types.Create, m types.Mention, model string, res *Result) error {
	name := types.NormalizeName(d.ConfirmedName)
	p := &types.Project{
		CanonicalName: name,
		Tags:          d.Tags,
	}
	if d.PertinentText != "" {
		p.Narrative = a.narrativeEntry(m.DocumentID, d.PertinentText, true)
	}
	if raw := types.NormalizeName(m.Raw); raw != "" && types.NameKey(raw) != types.NameKey(name) {
		p.Aliases = []string{raw}
	}

	err := tx.CreateProject(ctx, p)
	if errors.Is(err, storage.ErrDuplicateName) {
		// Another document created the name first: link to the winner.
		winner, gerr := tx.GetProjectByName(ctx, name)
		if gerr != nil {
			return fmt.Errorf("resolving duplicate %q: %w", name, gerr)
		}
		a.log.Info("duplicate create linked to existing project",
			"document", m.DocumentID, "mention", m.Raw, "project", winner.ID)
		res.DuplicateRace = true
		return a.link(ctx, tx, winner.ID, d.Evidence, m, model, res)
	}
	if err != nil {
		return err
	}

	res.ProjectID, res.ProjectName = p.ID, p.CanonicalName
	res.Outcome = types.OutcomeCreated
	res.Appended = p.Narrative != ""
	res.AliasesAdded = p.Aliases
	return a.writeLog(ctx, tx, p.ID, types.ActionCreate, d.Evidence, m, model, res)
}

func (a *Aggregator) link(ctx context.Context, tx storage.Transaction, projectID int64, ev types.Evidence, m types.Mention, model string, res *Result) error {
	p, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	res.ProjectID, res.ProjectName = p.ID, p.CanonicalName
	res.Outcome = types.OutcomeLinked

	if ev.PertinentText != "" {
		seen, err := tx.HasEvidence(ctx, p.ID, m.DocumentID, ev.PertinentText)
		if err != nil {
			return err
		}
		if !seen {
			if err := tx.AppendNarrative(ctx, p.ID, a.narrativeEntry(m.DocumentID, ev.PertinentText, p.Narrative == "")); err != nil {
				return err
			}
			res.Appended = true
		}
	}

	for _, alias := range []string{ev.ConfirmedName, m.Raw} {
		added, err := tx.AddAlias(ctx, p.ID, alias)
		if err != nil {
			return err
		}
		if added {
			res.AliasesAdded = append(res.AliasesAdded, types.NormalizeName(alias))
		}
	}
	if len(ev.Tags) > 0 {
		if err := tx.AddTags(ctx, p.ID, ev.Tags); err != nil {
			return err
		}
	}
	return a.writeLog(ctx, tx, p.ID, types.ActionLink, ev, m, model, res)
}

func (a *Aggregator) writeLog(ctx context.Context, tx storage.Transaction, projectID int64, action types.Action, ev types.Evidence, m types.Mention, model string, res *Result) error {
	e := &types.LogEntry{
		ProjectID:     projectID,
		DocumentID:    m.DocumentID,
		Mention:       m.Raw,
		Location:      m.Location,
		Action:        action,
		ConfirmedName: ev.ConfirmedName,
		PertinentText: ev.PertinentText,
		Tags:          ev.Tags,
		Model:         model,
		Confidence:    ev.Confidence,
		Reasoning:     ev.Reasoning,
		CreatedAt:     a.now(),
	}
	if err := tx.WriteLogEntry(ctx, e); err != nil {
		return err
	}
	res.LogEntryID = e.ID
	return nil
}

// narrativeEntry formats one block of evidence with its provenance header.
func (a *Aggregator) narrativeEntry(documentID, text string, first bool) string {
	var b strings.Builder
	if !first {
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "---\nTimestamp: %s\nSource Document: %s\n---\n%s",
		a.now().Format(time.RFC3339), documentID, strings.TrimSpace(text))
	return b.String()
}
